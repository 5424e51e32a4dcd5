package querycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/querycache/apierr"
	gen "github.com/unkn0wn-root/querycache/genstore"
	"github.com/unkn0wn-root/querycache/internal/util"
	"github.com/unkn0wn-root/querycache/internal/wire"
	pr "github.com/unkn0wn-root/querycache/provider"
)

type store struct {
	ns             string
	prefix         string
	provider       pr.Provider
	gen            gen.GenStore
	log            Logger
	hooks          Hooks
	clock          Clock
	enabled        bool
	entryTTL       time.Duration
	defaultStale   time.Duration
	staleness      map[string]time.Duration
	computeSetCost SetCostFunc
	isAuth         func(error) bool

	pool     *ants.Pool
	sf       singleflight.Group
	families sync.Map // family string -> Family

	// mu serializes commits against Write, Remove and Clear.
	mu         sync.Mutex
	index      map[string]Key // storage key -> key, for Clear
	lastErr    map[string]error
	refreshing map[string]struct{}
	epoch      uint64

	clearSeq atomic.Uint64 // entries with a lower seq predate the last Clear
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   atomic.Bool
	once     sync.Once
}

var _ Cache = (*store)(nil)

func newCache(opts Options) (*store, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("querycache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("querycache: namespace is required")
	}

	c := &store{
		ns:         opts.Namespace,
		prefix:     "q:" + opts.Namespace,
		provider:   opts.Provider,
		enabled:    !opts.Disabled,
		staleness:  make(map[string]time.Duration, len(opts.Staleness)),
		index:      make(map[string]Key),
		lastErr:    make(map[string]error),
		refreshing: make(map[string]struct{}),
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.clock = coalesce[Clock](opts.Clock, systemClock{})
	c.entryTTL = coalesce(opts.EntryTTL, defaultEntryTTL)
	c.defaultStale = coalesce(opts.DefaultStaleTime, defaultStaleTime)
	for kind, d := range opts.Staleness {
		c.staleness[kind] = d
	}

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if opts.IsAuthError != nil {
		c.isAuth = opts.IsAuthError
	} else {
		c.isAuth = apierr.IsAuth
	}

	pool, err := ants.NewPool(coalesce(opts.RevalidateWorkers, defaultRevalidateWorkers), ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("querycache: revalidation pool: %w", err)
	}
	c.pool = pool

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		// in-process versions with periodic cleanup
		c.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}

	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	return c, nil
}

func (c *store) Enabled() bool { return c.enabled }

// Close waits for background revalidations (until ctx ends), then releases the
// pool, the gen store and the provider.
func (c *store) Close(ctx context.Context) error {
	var errs []error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed.Store(true)
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.bg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		c.bgCancel()
		c.pool.Release()

		if err := c.gen.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := c.provider.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (c *store) StaleTime(kind string) time.Duration {
	if d, ok := c.staleness[kind]; ok {
		return d
	}
	return c.defaultStale
}

func (c *store) Read(ctx context.Context, key Key, fetch Fetcher) ([]byte, error) {
	return c.ReadWithin(ctx, key, fetch, c.StaleTime(key.Kind()))
}

func (c *store) ReadWithin(ctx context.Context, key Key, fetch Fetcher, window time.Duration) ([]byte, error) {
	if err := c.check(key); err != nil {
		return nil, err
	}
	if fetch == nil {
		return nil, ErrNilFetcher
	}
	if !c.enabled {
		return fetch(ctx)
	}

	sk := c.storageKey(key)
	if e, ok := c.lookup(ctx, sk); ok {
		if c.isStale(ctx, key, e, window) {
			c.revalidate(key, sk, fetch)
		}
		return bytes.Clone(e.Payload), nil
	}
	return c.fetchShared(ctx, key, sk, fetch)
}

func (c *store) Peek(ctx context.Context, key Key) (Entry, bool, error) {
	if err := c.check(key); err != nil {
		return Entry{}, false, err
	}
	if !c.enabled {
		return Entry{}, false, nil
	}
	e, ok := c.lookup(ctx, c.storageKey(key))
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{
		Payload:   bytes.Clone(e.Payload),
		FetchedAt: e.FetchedAt,
		Stale:     c.isStale(ctx, key, e, c.StaleTime(key.Kind())),
	}, true, nil
}

func (c *store) Write(ctx context.Context, key Key, payload []byte) error {
	if err := c.check(key); err != nil {
		return err
	}
	if !c.enabled {
		return nil
	}
	sk := c.storageKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.gen.Bump(ctx, sk)
	if err != nil {
		c.hooks.GenStoreError("bump", err)
		return fmt.Errorf("querycache: write %s: %w", key, err)
	}
	seq, err := c.gen.Next(ctx)
	if err != nil {
		c.hooks.GenStoreError("next", err)
		return fmt.Errorf("querycache: write %s: %w", key, err)
	}
	if err := c.commitLocked(ctx, key, sk, g, seq, payload); err != nil {
		return fmt.Errorf("querycache: write %s: %w", key, err)
	}
	return nil
}

func (c *store) InvalidatePrefix(ctx context.Context, family Family) error {
	if err := validKind(family.Kind()); err != nil {
		return err
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.enabled {
		return nil
	}
	seq, err := c.gen.Next(ctx)
	if err != nil {
		c.hooks.GenStoreError("next", err)
		return fmt.Errorf("querycache: invalidate %s: %w", family, err)
	}
	if err := c.gen.Mark(ctx, family.Kind(), family.String(), seq); err != nil {
		c.hooks.GenStoreError("mark", err)
		return fmt.Errorf("querycache: invalidate %s: %w", family, err)
	}
	c.log.Debug("family invalidated", Fields{"family": family.String(), "seq": seq})
	return nil
}

func (c *store) Remove(ctx context.Context, key Key) error {
	if err := c.check(key); err != nil {
		return err
	}
	if !c.enabled {
		return nil
	}
	sk := c.storageKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, bumpErr := c.gen.Bump(ctx, sk)
	delErr := c.provider.Del(ctx, sk)
	delete(c.index, sk)
	delete(c.lastErr, sk)

	switch {
	case bumpErr != nil && delErr != nil:
		c.hooks.RemoveOutage(sk, bumpErr, delErr)
		c.log.Error("remove failed: bump and delete", Fields{"key": sk, "bumpErr": bumpErr, "delErr": delErr})
		return &RemoveError{Key: key.String(), BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		c.hooks.GenStoreError("bump", bumpErr)
		c.log.Warn("remove: bump failed, entry deleted", Fields{"key": sk, "err": bumpErr})
	case delErr != nil:
		c.hooks.ProviderError("del", delErr)
		c.log.Warn("remove: delete failed, entry unreachable", Fields{"key": sk, "err": delErr})
	}
	return nil
}

func (c *store) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	var errs []error
	if seq, err := c.gen.Next(ctx); err == nil {
		c.clearSeq.Store(seq)
	} else {
		c.hooks.GenStoreError("next", err)
		errs = append(errs, err)
	}
	for sk := range c.index {
		if err := c.provider.Del(ctx, sk); err != nil {
			c.hooks.ProviderError("del", err)
			errs = append(errs, err)
		}
	}
	c.index = make(map[string]Key)
	c.lastErr = make(map[string]error)

	if err := c.gen.Reset(ctx); err != nil {
		c.hooks.GenStoreError("reset", err)
		errs = append(errs, err)
	}
	c.log.Info("cache cleared", Fields{"ns": c.ns, "epoch": c.epoch})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("querycache: clear: %w", err)
	}
	return nil
}

func (c *store) LastError(key Key) error {
	sk := c.storageKey(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr[sk]
}

func (c *store) check(key Key) error {
	if key.IsZero() {
		return ErrZeroKey
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *store) storageKey(key Key) string {
	return util.StorageKey(c.prefix, key.kind, key.params)
}

// lookup returns the live entry stored under sk. Corrupt frames are deleted.
// Entries from an older generation or from before the last Clear are treated
// as absent but left in place: a concurrent Write may already have replaced
// the frame read here, and the next commit or the TTL drops the old one.
func (c *store) lookup(ctx context.Context, sk string) (wire.Entry, bool) {
	raw, ok, err := c.provider.Get(ctx, sk)
	if err != nil {
		c.hooks.ProviderError("get", err)
		c.log.Warn("provider get failed, treating as miss", Fields{"key": sk, "err": err})
		return wire.Entry{}, false
	}
	if !ok {
		return wire.Entry{}, false
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = c.provider.Del(ctx, sk) // self-heal corrupt
		c.hooks.SelfHeal(sk, "corrupt")
		return wire.Entry{}, false
	}
	g, err := c.gen.Snapshot(ctx, sk)
	if err != nil {
		c.hooks.GenStoreError("snapshot", err)
		return wire.Entry{}, false
	}
	if e.Gen != g || e.Seq < c.clearSeq.Load() {
		return wire.Entry{}, false
	}
	return e, true
}

func (c *store) isStale(ctx context.Context, key Key, e wire.Entry, window time.Duration) bool {
	if window >= 0 && c.clock.Now().Sub(e.FetchedAt) > window {
		return true
	}
	marks, err := c.gen.Marks(ctx, key.Kind())
	if err != nil {
		c.hooks.GenStoreError("marks", err)
		return true
	}
	for fam, seq := range marks {
		if seq <= e.Seq {
			continue
		}
		if f, ok := c.family(fam); ok && f.Matches(key) {
			return true
		}
	}
	return false
}

func (c *store) family(s string) (Family, bool) {
	if v, ok := c.families.Load(s); ok {
		return v.(Family), true
	}
	f, err := ParseFamily(s)
	if err != nil {
		c.log.Warn("ignoring unparsable invalidation mark", Fields{"family": s, "err": err})
		return Family{}, false
	}
	c.families.Store(s, f)
	return f, true
}

func flightKey(epoch uint64, sk string) string {
	return strconv.FormatUint(epoch, 10) + "|" + sk
}

// fetchShared runs at most one fetch per key and clear epoch. A caller whose
// ctx ends first gets ctx.Err(); the fetch keeps running and still commits.
func (c *store) fetchShared(ctx context.Context, key Key, sk string, fetch Fetcher) ([]byte, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(flightKey(epoch, sk), func() (any, error) {
		return c.fetchAndCommit(detached, key, sk, fetch, epoch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return bytes.Clone(r.Val.([]byte)), nil
	}
}

func (c *store) fetchAndCommit(ctx context.Context, key Key, sk string, fetch Fetcher, epoch uint64) ([]byte, error) {
	commit := true
	g0, err := c.gen.Snapshot(ctx, sk)
	if err != nil {
		c.hooks.GenStoreError("snapshot", err)
		commit = false
	}
	seq, err := c.gen.Next(ctx)
	if err != nil {
		c.hooks.GenStoreError("next", err)
		commit = false
	}

	payload, err := fetch(ctx)
	if err != nil {
		if c.isAuth(err) {
			c.authClear(ctx, sk, err)
		}
		return nil, err
	}
	if !commit {
		return payload, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		c.hooks.FetchDiscarded(sk, "cleared")
		c.log.Debug("fetch result discarded (cleared)", Fields{"key": sk})
		return payload, nil
	}
	g1, err := c.gen.Snapshot(ctx, sk)
	if err != nil || g1 != g0 {
		c.hooks.FetchDiscarded(sk, "superseded")
		c.log.Debug("fetch result discarded (superseded)", Fields{"key": sk, "gen": g0})
		if cur, ok := c.lookup(ctx, sk); ok {
			return cur.Payload, nil
		}
		return payload, nil
	}
	if err := c.commitLocked(ctx, key, sk, g0, seq, payload); err != nil {
		c.log.Warn("fetch result not cached", Fields{"key": sk, "err": err})
	}
	return payload, nil
}

// commitLocked stores payload under sk. Callers hold c.mu.
func (c *store) commitLocked(ctx context.Context, key Key, sk string, g, seq uint64, payload []byte) error {
	raw := wire.EncodeEntry(wire.Entry{Gen: g, Seq: seq, FetchedAt: c.clock.Now(), Payload: payload})
	ok, err := c.provider.Set(ctx, sk, raw, c.computeSetCost(sk, raw), c.entryTTL)
	if err != nil {
		c.hooks.ProviderError("set", err)
		return err
	}
	if !ok {
		c.hooks.ProviderSetRejected(sk)
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": sk})
	}
	c.index[sk] = key
	delete(c.lastErr, sk)
	return nil
}

// revalidate refreshes sk in the background. At most one refresh per key runs
// at a time; a saturated pool skips the refresh.
func (c *store) revalidate(key Key, sk string, fetch Fetcher) {
	c.mu.Lock()
	if _, busy := c.refreshing[sk]; busy || c.closed.Load() {
		c.mu.Unlock()
		return
	}
	c.refreshing[sk] = struct{}{}
	epoch := c.epoch
	c.bg.Add(1)
	c.mu.Unlock()

	done := func() {
		c.mu.Lock()
		delete(c.refreshing, sk)
		c.mu.Unlock()
		c.bg.Done()
	}

	err := c.pool.Submit(func() {
		defer done()
		_, err, _ := c.sf.Do(flightKey(epoch, sk), func() (any, error) {
			return c.fetchAndCommit(c.bgCtx, key, sk, fetch, epoch)
		})
		if err != nil {
			c.mu.Lock()
			if c.epoch == epoch {
				c.lastErr[sk] = err
			}
			c.mu.Unlock()
			c.hooks.RevalidateFailed(sk, err)
			c.log.Warn("background revalidation failed; serving stale", Fields{"key": sk, "err": err})
		}
	})
	if err != nil {
		done()
		c.hooks.RevalidateSkipped(sk)
		c.log.Debug("background revalidation skipped", Fields{"key": sk, "err": err})
	}
}

func (c *store) authClear(ctx context.Context, sk string, cause error) {
	c.hooks.AuthCleared(sk)
	c.log.Warn("auth failure, clearing cache", Fields{"key": sk, "err": cause})
	if err := c.Clear(ctx); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Error("clear after auth failure", Fields{"err": err})
	}
}
