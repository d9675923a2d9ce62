package cache

import (
	"sync"
	"time"
)

// Status is the fetch status of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of an entry.
type State struct {
	Hash   string
	Key    []any
	Status Status

	// Data is the last successfully fetched value; HasData distinguishes
	// a cached nil from no data.
	Data    any
	HasData bool

	// Err is the error of the last failed fetch. Data is kept on failure.
	Err error

	UpdatedAt     time.Time
	IsStale       bool
	FailureCount  int
	ObserverCount int

	// Removed is set on the final notification sent by Clear with Notify.
	Removed bool
}

// Entry holds the cached state for one normalized key.
//
// All mutable fields are guarded by mu. Notifications are queued while mu
// is held and delivered afterwards by dispatch, one goroutine at a time, so
// observers see every transition of an entry in order.
type Entry struct {
	cache *Cache
	hash  string
	key   []any

	mu           sync.Mutex
	base         Config
	status       Status
	data         any
	hasData      bool
	err          error
	updatedAt    time.Time
	stale        bool
	failureCount int

	op   *fetchOp
	subs []*Subscription

	staleTimer *time.Timer
	staleGen   uint64
	gcTimer    *time.Timer
	gcGen      uint64

	// deferred entries were hydrated but have no timers armed yet.
	deferred bool
	removed  bool

	queue       []notification
	dispatching bool
}

func newEntry(c *Cache, nk NormalizedKey, cfg Config) *Entry {
	e := &Entry{
		cache: c,
		hash:  nk.Hash,
		key:   nk.Key,
		base:  cfg,
	}
	if cfg.HasInitialData {
		e.status = StatusSuccess
		e.data = cfg.InitialData
		e.hasData = true
		e.updatedAt = c.now()
	}
	return e
}

// Hash returns the canonical key hash.
func (e *Entry) Hash() string { return e.hash }

// Key returns a copy of the canonical key parts.
func (e *Entry) Key() []any { return append([]any(nil), e.key...) }

// State returns a snapshot of the entry.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// IsStale reports whether the entry's data is absent or past its stale time.
func (e *Entry) IsStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStaleLocked()
}

// Config returns the effective configuration, merged across observers.
func (e *Entry) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effectiveLocked()
}

func (e *Entry) stateLocked() State {
	return State{
		Hash:          e.hash,
		Key:           append([]any(nil), e.key...),
		Status:        e.status,
		Data:          e.data,
		HasData:       e.hasData,
		Err:           e.err,
		UpdatedAt:     e.updatedAt,
		IsStale:       e.isStaleLocked(),
		FailureCount:  e.failureCount,
		ObserverCount: len(e.subs),
		Removed:       e.removed,
	}
}

func (e *Entry) isStaleLocked() bool {
	return e.stale || !e.hasData
}

// needsFetchLocked reports whether a refetch trigger should fetch. Failed
// entries are always eligible.
func (e *Entry) needsFetchLocked() bool {
	return e.isStaleLocked() || e.status == StatusError
}

// effectiveLocked merges observer options over the entry configuration.
// The shortest stale time and the longest cache time win; every other
// option is taken from the most recent observer that sets it.
func (e *Entry) effectiveLocked() Config {
	cfg := e.base
	staleTime, cacheTime := e.base.StaleTime, e.base.CacheTime
	for _, s := range e.subs {
		own := applyOptions(e.base, s.opts)
		staleTime = min(staleTime, own.StaleTime)
		cacheTime = max(cacheTime, own.CacheTime)
		cfg = applyOptions(cfg, s.opts)
	}
	cfg.StaleTime = staleTime
	cfg.CacheTime = cacheTime
	return cfg.withDefaults()
}

// hooksLocked collects the terminal callbacks of the entry and of every
// observer that registered its own.
func (e *Entry) hooksLocked(data any, err error) []func() {
	sources := make([]Config, 0, len(e.subs)+1)
	sources = append(sources, e.base)
	for _, s := range e.subs {
		sources = append(sources, s.own)
	}

	var hooks []func()
	for _, src := range sources {
		if err == nil && src.OnSuccess != nil {
			hooks = append(hooks, func() { src.OnSuccess(data) })
		}
		if err != nil && src.OnError != nil {
			hooks = append(hooks, func() { src.OnError(err) })
		}
		if src.OnSettled != nil {
			hooks = append(hooks, func() { src.OnSettled(data, err) })
		}
	}
	return hooks
}

// applySuccessLocked records data as the latest successful result and
// returns the value now cached. Equal data keeps the previous reference.
func (e *Entry) applySuccessLocked(data any) any {
	cfg := e.effectiveLocked()
	if !e.hasData || !cfg.IsDataEqual(e.data, data) {
		e.data = data
	}
	e.hasData = true
	e.err = nil
	e.updatedAt = e.cache.now()
	e.stale = false
	if e.op == nil {
		e.status = StatusSuccess
		e.failureCount = 0
	}
	e.armTimersLocked()
	return e.data
}

func (e *Entry) applyErrorLocked(err error) {
	e.err = err
	e.status = StatusError
	e.deferred = false
	e.armGCLocked()
}

// armTimersLocked makes the entry live: the stale timer runs for the time
// remaining since updatedAt and GC is armed when nobody observes it.
// It reports whether the entry became stale immediately.
func (e *Entry) armTimersLocked() bool {
	e.deferred = false
	became := e.armStaleLocked()
	e.armGCLocked()
	return became
}

func (e *Entry) armStaleLocked() bool {
	e.stopStaleLocked()
	if !e.hasData || e.stale {
		return false
	}

	staleTime := e.effectiveLocked().StaleTime
	if staleTime == StaleTimeInfinite {
		return false
	}

	remaining := staleTime - e.cache.now().Sub(e.updatedAt)
	if remaining <= 0 {
		e.stale = true
		return true
	}

	gen := e.staleGen
	e.staleTimer = time.AfterFunc(remaining, func() { e.expire(gen) })
	return false
}

func (e *Entry) stopStaleLocked() {
	e.staleGen++
	if e.staleTimer != nil {
		e.staleTimer.Stop()
		e.staleTimer = nil
	}
}

// expire is the stale timer callback.
func (e *Entry) expire(gen uint64) {
	e.mu.Lock()
	if e.removed || gen != e.staleGen || e.stale {
		e.mu.Unlock()
		return
	}
	e.stale = true
	e.staleTimer = nil
	e.enqueueLocked(EventUpdated, true)
	e.mu.Unlock()
	e.dispatch()
}

func (e *Entry) armGCLocked() {
	e.stopGCLocked()
	if e.removed || e.deferred || len(e.subs) > 0 {
		return
	}

	cacheTime := e.effectiveLocked().CacheTime
	if cacheTime == CacheTimeInfinite {
		return
	}

	gen := e.gcGen
	e.gcTimer = time.AfterFunc(cacheTime, func() { e.cache.collect(e, gen) })
}

func (e *Entry) stopGCLocked() {
	e.gcGen++
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
}

// invalidate marks the entry stale. It returns the fetch function to run
// when the entry has observers that expect fresh data.
func (e *Entry) invalidate() (FetchFunc, bool) {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, false
	}
	e.stopStaleLocked()
	if !e.stale {
		e.stale = true
		e.enqueueLocked(EventUpdated, true)
	}
	fn := e.base.Fetch
	refetch := len(e.subs) > 0 && fn != nil
	e.mu.Unlock()
	e.dispatch()
	return fn, refetch
}

func (e *Entry) fetchFunc() FetchFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil
	}
	return e.base.Fetch
}

// focusFetch returns the fetch function when a focus event should refetch.
func (e *Entry) focusFetch() (FetchFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || len(e.subs) == 0 || e.base.Fetch == nil {
		return nil, false
	}
	if !e.effectiveLocked().RefetchOnWindowFocus || !e.needsFetchLocked() {
		return nil, false
	}
	return e.base.Fetch, true
}
