package querycache

import (
	"context"
	"time"

	gen "github.com/unkn0wn-root/querycache/genstore"
	pr "github.com/unkn0wn-root/querycache/provider"
)

// Fetcher loads the current payload for a key from the API.
// It receives a context detached from the reader's cancellation: the first
// reader going away does not abort a fetch other readers may be waiting on.
type Fetcher func(ctx context.Context) ([]byte, error)

// SetCostFunc reports the provider cost of an encoded entry.
type SetCostFunc func(storageKey string, raw []byte) int64

// Entry is a snapshot of one cached query result.
type Entry struct {
	Payload   []byte
	FetchedAt time.Time
	Stale     bool
}

// Cache is the query cache of one console session.
//
// Reads are stale-while-revalidate: a present entry is always returned at once,
// and a stale one is refreshed in the background. Concurrent reads of a missing
// key share a single fetch.
type Cache interface {
	Enabled() bool
	Close(context.Context) error

	// Read uses the staleness window configured for key.Kind().
	Read(ctx context.Context, key Key, fetch Fetcher) ([]byte, error)
	// ReadWithin uses window instead; window < 0 disables age-based staleness.
	ReadWithin(ctx context.Context, key Key, fetch Fetcher, window time.Duration) ([]byte, error)
	// Peek returns the cached entry without fetching or revalidating.
	Peek(ctx context.Context, key Key) (Entry, bool, error)

	// Write overwrites the entry for key and marks it fresh.
	Write(ctx context.Context, key Key, payload []byte) error
	// InvalidatePrefix marks every key in family stale, including keys cached later
	// from fetches dispatched before this call. Such an in-flight fetch is still
	// committed, but as a stale entry: the next read serves it once and refetches.
	InvalidatePrefix(ctx context.Context, family Family) error
	// Remove deletes the entry; the next read fetches as if it never existed.
	Remove(ctx context.Context, key Key) error
	// Clear drops every entry and invalidation mark (logout, auth failure).
	Clear(ctx context.Context) error

	// LastError is the most recent background revalidation error for key, if any.
	LastError(key Key) error
	// StaleTime is the staleness window applied by Read for kind.
	StaleTime(kind string) time.Duration
}

// Options tune the behavior of the cache.
// Only Namespace and Provider are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // isolates one session, e.g. "console:<session-id>"
	Provider  pr.Provider

	Logger            Logger        // if nil, NopLogger is used
	Hooks             Hooks         // if nil, NopHooks is used
	Clock             Clock         // if nil, wall clock
	GenStore          gen.GenStore  // nil => LocalGenStore (in-process)
	DefaultStaleTime  time.Duration // 0 => 1m; < 0 => never stale by age
	Staleness         map[string]time.Duration
	EntryTTL          time.Duration // provider TTL; 0 => 30m
	CleanupInterval   time.Duration // 0 => 1h
	GenRetention      time.Duration // 0 => 30d
	RevalidateWorkers int           // background refresh pool size; 0 => 8
	Disabled          bool          // default false (enabled)
	ComputeSetCost    SetCostFunc   // default len(raw)
	// IsAuthError decides which fetch errors clear the cache. nil => apierr.IsAuth.
	IsAuthError func(error) bool
}

func New(opts Options) (Cache, error) {
	return newCache(opts)
}
