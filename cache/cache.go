package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/querycache/observe"
	"github.com/jonwraymond/querycache/resilience"
)

// Cache maps normalized key hashes to entries.
//
// Contract:
// - Concurrency: safe for concurrent use. Each entry serializes its own
//   transitions; the registry is a concurrent map.
// - Context: ctx bounds how long a caller waits. A fetch shared by several
//   callers keeps running when one of them gives up.
// - Errors: invalid keys fail with ErrInvalidKey before any entry is
//   created. Fetch failures become entry state and are returned as
//   *FetchError to every caller attached to the operation.
type Cache struct {
	defaults Config
	entries  *xsync.MapOf[string, *Entry]
	flight   singleflight.Group

	middleware *observe.Middleware
	metrics    observe.Metrics
	logger     observe.Logger
	bulkhead   *resilience.Bulkhead
	now        func() time.Time

	listenersMu sync.RWMutex
	listeners   map[uint64]func(Event)
	nextID      uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaults layers opts over DefaultConfig for every entry of the cache.
func WithDefaults(opts ...QueryOption) Option {
	return func(c *Cache) { c.defaults = applyOptions(c.defaults, opts) }
}

// WithLogger sets the cache logger. Defaults to the middleware's logger.
func WithLogger(l observe.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMiddleware instruments every fetch attempt.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(c *Cache) { c.middleware = mw }
}

// WithFetchBulkhead bounds the number of concurrent fetch attempts across
// the cache. Rejected attempts count as failures and follow the retry
// policy.
func WithFetchBulkhead(b *resilience.Bulkhead) Option {
	return func(c *Cache) { c.bulkhead = b }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		defaults:  DefaultConfig(),
		entries:   xsync.NewMapOf[string, *Entry](),
		now:       time.Now,
		listeners: make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.middleware == nil {
		c.middleware = observe.NopMiddleware()
	}
	if c.logger == nil {
		c.logger = c.middleware.Logger()
	}
	c.metrics = c.middleware.Metrics()
	c.defaults = c.defaults.withDefaults()

	return c
}

// Defaults returns the cache-wide query defaults.
func (c *Cache) Defaults() Config { return c.defaults }

type createMode int

const (
	createLive     createMode = iota // arm timers on creation
	createDeferred                   // hydration: timers wait for InitializeEntry
	createUpdate                     // like createLive, and apply opts to an existing entry
)

// entryFor returns the entry for key, creating it if needed.
func (c *Cache) entryFor(key any, opts []QueryOption, mode createMode, updatedAt time.Time) (*Entry, bool, error) {
	nk, err := NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	cfg := applyOptions(c.defaults, opts)
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	for {
		created := false
		e, _ := c.entries.LoadOrCompute(nk.Hash, func() *Entry {
			created = true
			return newEntry(c, nk, cfg)
		})

		e.mu.Lock()
		if e.removed {
			// Lost a race with GC or Remove; the hash is free again.
			e.mu.Unlock()
			continue
		}

		switch {
		case created && mode == createDeferred:
			e.deferred = true
			if e.hasData && !updatedAt.IsZero() {
				e.updatedAt = updatedAt
			}
		case created:
			e.armTimersLocked()
		case mode == createUpdate && len(opts) > 0:
			e.base = applyOptions(e.base, opts)
		}
		if created {
			e.enqueueLocked(EventAdded, false)
		}
		e.mu.Unlock()
		e.dispatch()

		if created {
			c.metrics.AddEntries(context.Background(), 1)
			c.logger.WithQuery(observe.QueryMeta{Hash: nk.Hash}).Debug(context.Background(), "entry created")
		}
		return e, created, nil
	}
}

// CreateEntry returns the entry for key, creating it with opts layered over
// the cache defaults if it does not exist. An existing entry is returned
// unchanged. With WithInitialData the new entry starts in StatusSuccess.
func (c *Cache) CreateEntry(key any, opts ...QueryOption) (*Entry, error) {
	e, _, err := c.entryFor(key, opts, createLive, time.Time{})
	return e, err
}

// CreateDeferredEntry is CreateEntry without arming the entry's timers; the
// entry stays fresh and is not collected until InitializeEntry is called
// for its hash or it is observed or fetched. A non-zero updatedAt replaces
// the creation time of initial data. It reports whether the entry was
// created.
func (c *Cache) CreateDeferredEntry(key any, updatedAt time.Time, opts ...QueryOption) (*Entry, bool, error) {
	return c.entryFor(key, opts, createDeferred, updatedAt)
}

// InitializeEntry arms the timers of a deferred entry. It reports whether
// the entry was deferred; calling it again is a no-op.
func (c *Cache) InitializeEntry(hash string) bool {
	e, ok := c.entries.Load(hash)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.removed || !e.deferred {
		e.mu.Unlock()
		return false
	}
	if e.armTimersLocked() {
		e.enqueueLocked(EventUpdated, true)
	}
	e.mu.Unlock()
	e.dispatch()
	return true
}

// GetEntry looks up the entry for key without creating it.
func (c *Cache) GetEntry(key any) (*Entry, error) {
	nk, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	e, ok := c.entries.Load(nk.Hash)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Lookup returns the entry stored under hash.
func (c *Cache) Lookup(hash string) (*Entry, bool) {
	return c.entries.Load(hash)
}

// Fetch returns fresh cached data for key, or runs fn and waits for it.
// Concurrent calls for the same key share one operation. opts are stored
// on the entry and apply to later calls as well.
func (c *Cache) Fetch(ctx context.Context, key any, fn FetchFunc, opts ...QueryOption) (any, error) {
	if fn == nil {
		return nil, ErrNilFetch
	}

	e, _, err := c.entryFor(key, append(opts[:len(opts):len(opts)], WithFetch(fn)), createUpdate, time.Time{})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	fresh := e.status == StatusSuccess && !e.isStaleLocked()
	data := e.data
	e.mu.Unlock()

	if fresh {
		c.metrics.RecordHit(ctx, observe.QueryMeta{Hash: e.hash})
		return data, nil
	}
	return c.fetchEntry(ctx, e, fn)
}

// Fetch is the typed form of (*Cache).Fetch. Cached data that is not a T
// fails with ErrTypeMismatch.
func Fetch[T any](ctx context.Context, c *Cache, key any, fn func(ctx context.Context) (T, error), opts ...QueryOption) (T, error) {
	var zero T
	if c == nil {
		return zero, ErrNilCache
	}
	if fn == nil {
		return zero, ErrNilFetch
	}

	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: have %T, want %T", ErrTypeMismatch, v, zero)
	}
	return t, nil
}

// Prefetch is Fetch without a result. Fetch failures are recorded on the
// entry and not returned; invalid keys and options still are.
func (c *Cache) Prefetch(ctx context.Context, key any, fn FetchFunc, opts ...QueryOption) error {
	_, err := c.Fetch(ctx, key, fn, opts...)
	var fe *FetchError
	if errors.As(err, &fe) {
		return nil
	}
	return err
}

// SetData stores data for key as if a fetch had just succeeded.
func (c *Cache) SetData(key any, data any) error {
	e, _, err := c.entryFor(key, nil, createLive, time.Time{})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.applySuccessLocked(data)
	e.enqueueLocked(EventUpdated, true)
	e.mu.Unlock()
	e.dispatch()
	return nil
}

// GetData returns the cached data for key. It fails with ErrNotFound when
// the entry does not exist or has no data.
func (c *Cache) GetData(key any) (any, error) {
	e, err := c.GetEntry(key)
	if err != nil {
		return nil, err
	}
	st := e.State()
	if !st.HasData {
		return nil, ErrNotFound
	}
	return st.Data, nil
}

// Invalidate marks the entry for key stale. See InvalidateMatching.
func (c *Cache) Invalidate(ctx context.Context, key any) error {
	pred, err := MatchKey(key)
	if err != nil {
		return err
	}
	return c.InvalidateMatching(ctx, pred)
}

// InvalidateMatching marks every matching entry stale and refetches those
// with observers, waiting for the refetches. Refetch failures are recorded
// on the entries; only ctx errors are returned.
func (c *Cache) InvalidateMatching(ctx context.Context, pred Predicate) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range c.match(pred) {
		fn, refetch := e.invalidate()
		c.logger.WithQuery(observe.QueryMeta{Hash: e.hash}).Debug(ctx, "entry invalidated",
			observe.Field{Key: "refetch", Value: refetch})
		if !refetch {
			continue
		}
		g.Go(func() error { return ctxErr(c.fetchEntry(gctx, e, fn)) })
	}
	return g.Wait()
}

// Refetch runs the stored fetch function of the entry for key, even if its
// data is fresh.
func (c *Cache) Refetch(ctx context.Context, key any) (any, error) {
	e, err := c.GetEntry(key)
	if err != nil {
		return nil, err
	}
	fn := e.fetchFunc()
	if fn == nil {
		return nil, ErrNilFetch
	}
	return c.fetchEntry(ctx, e, fn)
}

// RefetchMatching refetches every matching entry that has a stored fetch
// function and returns the first error.
func (c *Cache) RefetchMatching(ctx context.Context, pred Predicate) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range c.match(pred) {
		fn := e.fetchFunc()
		if fn == nil {
			continue
		}
		g.Go(func() error {
			_, err := c.fetchEntry(gctx, e, fn)
			return err
		})
	}
	return g.Wait()
}

// Focus signals that the application regained focus. Observed entries with
// RefetchOnWindowFocus whose data is stale or failed are refetched.
func (c *Cache) Focus(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range c.match(MatchAll) {
		fn, ok := e.focusFetch()
		if !ok {
			continue
		}
		g.Go(func() error { return ctxErr(c.fetchEntry(gctx, e, fn)) })
	}
	return g.Wait()
}

// ctxErr keeps only context errors from a fetch result.
func ctxErr(_ any, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Remove deletes the entry for key, canceling its timers. A fetch in
// flight keeps running but its result is discarded. It reports whether an
// entry was removed.
func (c *Cache) Remove(key any) (bool, error) {
	nk, err := NormalizeKey(key)
	if err != nil {
		return false, err
	}
	e, ok := c.entries.Load(nk.Hash)
	if !ok {
		return false, nil
	}
	return c.removeEntry(e, false, "entry removed"), nil
}

// ClearOptions configures Clear.
type ClearOptions struct {
	// Notify sends every observer a final State with Removed set.
	Notify bool
}

// Clear removes every entry.
func (c *Cache) Clear(opts ClearOptions) {
	c.entries.Range(func(_ string, e *Entry) bool {
		c.removeEntry(e, opts.Notify, "entry cleared")
		return true
	})
}

// collect is the GC timer callback.
func (c *Cache) collect(e *Entry, gen uint64) {
	e.mu.Lock()
	if e.removed || gen != e.gcGen || len(e.subs) > 0 || e.op != nil {
		e.mu.Unlock()
		return
	}
	subs := c.removeLocked(e, false)
	e.mu.Unlock()
	c.afterRemove(e, subs, "entry collected")
}

func (c *Cache) removeEntry(e *Entry, notify bool, msg string) bool {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return false
	}
	subs := c.removeLocked(e, notify)
	e.mu.Unlock()
	c.afterRemove(e, subs, msg)
	return true
}

// removeLocked detaches e from the registry and returns its former
// observers.
func (c *Cache) removeLocked(e *Entry, notify bool) []*Subscription {
	e.removed = true
	e.stopStaleLocked()
	e.stopGCLocked()
	if e.op != nil {
		e.op.cancel()
		e.op = nil
	}
	c.flight.Forget(e.hash)
	c.entries.Compute(e.hash, func(old *Entry, loaded bool) (*Entry, bool) {
		if loaded && old != e {
			return old, false
		}
		return nil, true
	})

	e.enqueueLocked(EventRemoved, notify)
	subs := e.subs
	e.subs = nil
	return subs
}

func (c *Cache) afterRemove(e *Entry, subs []*Subscription, msg string) {
	e.dispatch()
	for _, s := range subs {
		s.stop()
	}
	c.metrics.AddEntries(context.Background(), -1)
	c.logger.WithQuery(observe.QueryMeta{Hash: e.hash}).Debug(context.Background(), msg)
}

// Subscribe attaches listener to the entry for key, creating the entry if
// needed. opts apply to this observer only and are merged into the entry's
// effective configuration while it stays subscribed.
//
// When the entry's data is absent, stale or failed and RefetchOnMount is
// enabled, a background fetch starts with the entry's fetch function (see
// WithFetch). A positive RefetchInterval refetches periodically until
// Unsubscribe.
func (c *Cache) Subscribe(key any, listener Listener, opts ...QueryOption) (*Subscription, error) {
	for {
		e, _, err := c.entryFor(key, append(opts[:len(opts):len(opts)], c.restoreCallbacks), createLive, time.Time{})
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithCancel(context.Background())
		s := &Subscription{
			ID:       uuid.NewString(),
			entry:    e,
			listener: listener,
			opts:     opts,
			own:      applyOptions(Config{}, opts),
			stop:     cancel,
		}

		res, ok := e.attach(s)
		if !ok {
			cancel()
			continue
		}
		e.dispatch()

		if res.refetch {
			go func() { _, _ = c.fetchEntry(ctx, e, res.fetch) }()
		}
		if res.interval > 0 {
			go c.poll(ctx, e, res.interval)
		}
		return s, nil
	}
}

// restoreCallbacks keeps observer callbacks out of a new entry's
// configuration. They run through the subscription instead.
func (c *Cache) restoreCallbacks(cfg *Config) {
	cfg.OnSuccess = c.defaults.OnSuccess
	cfg.OnError = c.defaults.OnError
	cfg.OnSettled = c.defaults.OnSettled
}

// poll refetches e every interval until ctx ends.
func (c *Cache) poll(ctx context.Context, e *Entry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fn := e.fetchFunc(); fn != nil {
				_, _ = c.fetchEntry(ctx, e, fn)
			}
		}
	}
}

// OnEvent registers fn for every entry event of the cache. Events of one
// entry arrive in order. The returned function unregisters fn.
func (c *Cache) OnEvent(fn func(Event)) (unsubscribe func()) {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Cache) emit(ev Event) {
	c.listenersMu.RLock()
	if len(c.listeners) == 0 {
		c.listenersMu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = c.listeners[id]
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// match returns the entries selected by pred, ordered by hash.
func (c *Cache) match(pred Predicate) []*Entry {
	var out []*Entry
	c.entries.Range(func(_ string, e *Entry) bool {
		if pred == nil || pred(e) {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].hash < out[j].hash })
	return out
}

// Entries returns a snapshot of all entries ordered by hash.
func (c *Cache) Entries() []*Entry { return c.match(MatchAll) }

// Len returns the number of entries.
func (c *Cache) Len() int { return c.entries.Size() }

// IsFetching returns the number of entries with a fetch in flight.
func (c *Cache) IsFetching() int {
	n := 0
	c.entries.Range(func(_ string, e *Entry) bool {
		if e.State().Status == StatusFetching {
			n++
		}
		return true
	})
	return n
}
