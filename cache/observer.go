package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Listener receives entry state after every transition.
//
// Listeners run synchronously on the goroutine that caused the transition
// (or on the goroutine already delivering notifications for that entry) and
// may call back into the cache.
type Listener func(State)

// EventType classifies cache-level events.
type EventType int

const (
	EventAdded EventType = iota + 1
	EventUpdated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to cache-level listeners registered with OnEvent.
type Event struct {
	Type  EventType
	Hash  string
	State State
}

// Subscription is an observer attached to one entry.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Unsubscribe is idempotent.
type Subscription struct {
	// ID uniquely identifies the subscription.
	ID string

	entry    *Entry
	listener Listener
	opts     []QueryOption
	own      Config // opts applied to a zero Config
	stop     context.CancelFunc
	once     sync.Once
}

// Hash returns the hash of the observed entry.
func (s *Subscription) Hash() string { return s.entry.hash }

// State returns the current state of the observed entry.
func (s *Subscription) State() State { return s.entry.State() }

// Unsubscribe detaches the observer. When the last observer leaves, the
// entry's garbage collection timer starts.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stop()
		s.entry.detach(s)
	})
}

type attachResult struct {
	fetch    FetchFunc
	refetch  bool
	interval time.Duration
}

// attach registers s. It fails only when the entry was removed.
func (e *Entry) attach(s *Subscription) (attachResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return attachResult{}, false
	}

	resolved := applyOptions(e.base, s.opts)
	if s.own.Fetch != nil {
		e.base.Fetch = s.own.Fetch
	}
	// An observer's cache time outlives the observer.
	if resolved.CacheTime > e.base.CacheTime {
		e.base.CacheTime = resolved.CacheTime
	}

	e.subs = append(e.subs, s)
	e.stopGCLocked()
	e.deferred = false

	if e.armStaleLocked() {
		e.enqueueLocked(EventUpdated, true)
	}

	cfg := e.effectiveLocked()
	return attachResult{
		fetch:    e.base.Fetch,
		refetch:  cfg.RefetchOnMount && e.base.Fetch != nil && e.op == nil && e.needsFetchLocked(),
		interval: resolved.RefetchInterval,
	}, true
}

func (e *Entry) detach(s *Subscription) {
	e.mu.Lock()
	i := slices.Index(e.subs, s)
	if e.removed || i < 0 {
		e.mu.Unlock()
		return
	}
	e.subs = slices.Delete(e.subs, i, i+1)

	if e.armStaleLocked() {
		e.enqueueLocked(EventUpdated, true)
	}
	if len(e.subs) == 0 {
		e.armGCLocked()
	}
	e.mu.Unlock()
	e.dispatch()
}

type notification struct {
	event     EventType
	state     State
	listeners []Listener
	hooks     []func()
}

// enqueueLocked queues a notification carrying the current state. When
// toObservers is set, the current observers are captured in subscription
// order.
func (e *Entry) enqueueLocked(event EventType, toObservers bool, hooks ...func()) {
	n := notification{
		event: event,
		state: e.stateLocked(),
		hooks: hooks,
	}
	if toObservers {
		n.listeners = make([]Listener, 0, len(e.subs))
		for _, s := range e.subs {
			if s.listener != nil {
				n.listeners = append(n.listeners, s.listener)
			}
		}
	}
	e.queue = append(e.queue, n)
}

// dispatch delivers queued notifications. If another goroutine is already
// delivering for this entry it picks up the new ones, keeping delivery
// ordered without holding mu during callbacks.
func (e *Entry) dispatch() {
	e.mu.Lock()
	if e.dispatching {
		e.mu.Unlock()
		return
	}
	e.dispatching = true

	for len(e.queue) > 0 {
		n := e.queue[0]
		e.queue[0] = notification{}
		e.queue = e.queue[1:]

		e.mu.Unlock()
		for _, l := range n.listeners {
			l(n.state)
		}
		for _, h := range n.hooks {
			h()
		}
		e.cache.emit(Event{Type: n.event, Hash: e.hash, State: n.state})
		e.mu.Lock()
	}

	e.queue = nil
	e.dispatching = false
	e.mu.Unlock()
}
