package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var errNoMode = errors.New("codec: cbor codec not built with NewCBOR")

// CBOR encodes payloads with fxamacker/cbor. Fields without a cbor tag use
// their json tag, so API payload types need no extra tags.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR uses core deterministic encoding: equal payloads encode to equal
// bytes whatever their map order. Times are written as RFC 3339 strings.
func NewCBOR[V any]() (CBOR[V], error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	enc, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, fmt.Errorf("codec: cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBOR[V]{}, fmt.Errorf("codec: cbor decoder: %w", err)
	}
	return CBOR[V]{enc: enc, dec: dec}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return nil, errNoMode
	}
	return c.enc.Marshal(v)
}

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if c.dec == nil {
		return v, errNoMode
	}
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
