package querycache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths, sometimes while holding its commit lock.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "decode"}
	SelfHeal(storageKey, reason string)

	// A fetch result was not stored.
	// reason ∈ {"superseded", "cleared"}
	FetchDiscarded(storageKey, reason string)

	// A background revalidation failed; the stale entry keeps being served.
	RevalidateFailed(storageKey string, err error)

	// A background revalidation was not started because the worker pool is saturated.
	RevalidateSkipped(storageKey string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// Provider or GenStore errors. op names the call ("get", "set", "snapshot", "mark", ...).
	ProviderError(op string, err error)
	GenStoreError(op string, err error)

	// Both version bump and delete failed during Remove (likely backend outage).
	RemoveOutage(key string, bumpErr, delErr error)

	// An authentication failure dropped the whole cache.
	AuthCleared(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) FetchDiscarded(string, string)     {}
func (NopHooks) RevalidateFailed(string, error)    {}
func (NopHooks) RevalidateSkipped(string)          {}
func (NopHooks) ProviderSetRejected(string)        {}
func (NopHooks) ProviderError(string, error)       {}
func (NopHooks) GenStoreError(string, error)       {}
func (NopHooks) RemoveOutage(string, error, error) {}
func (NopHooks) AuthCleared(string)                {}
