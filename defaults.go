package querycache

import "time"

const (
	defaultStaleTime         = time.Minute
	defaultEntryTTL          = 30 * time.Minute
	defaultGenRetention      = 30 * 24 * time.Hour
	defaultSweep             = time.Hour
	defaultRevalidateWorkers = 8
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Clock provides time to the cache; tests swap in a controllable one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
