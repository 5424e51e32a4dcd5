package querycache

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKind  = errors.New("querycache: invalid kind")
	ErrInvalidParam = errors.New("querycache: invalid parameter")
	ErrZeroKey      = errors.New("querycache: zero key")
	ErrNilFetcher   = errors.New("querycache: nil fetcher")
	ErrClosed       = errors.New("querycache: closed")
)

// RemoveError is returned by Remove when both the version bump and the provider
// delete failed. With only one of them failing the entry is still unreachable
// (gen moved) or already gone, so Remove reports success.
type RemoveError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *RemoveError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("remove %q failed: version bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("remove %q: version bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("remove %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("remove %q: unknown error", e.Key)
	}
}

func (e *RemoveError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
