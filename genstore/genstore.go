package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where versions and invalidation marks live.
// Use LocalGenStore (default) for a single session, or RedisGenStore when a
// session's cache state has to survive a process restart.
//
// Three counters are tracked:
//   - a per-key generation, bumped by direct writes and removals;
//   - a global sequence, drawn once per fetch dispatch, write and invalidation;
//   - per-family marks: the sequence at which a family was last invalidated.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)

	// Next returns the next value of the monotonic global sequence.
	Next(ctx context.Context) (uint64, error)

	// Mark records seq as the invalidation point of family under kind.
	// A lower seq never replaces a higher one.
	Mark(ctx context.Context, kind, family string, seq uint64) error
	// Marks returns family => seq for every mark recorded under kind.
	Marks(ctx context.Context, kind string) (map[string]uint64, error)

	// Reset drops all generations and marks. The global sequence keeps counting.
	Reset(ctx context.Context) error

	// Cleanup prunes old generations if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
