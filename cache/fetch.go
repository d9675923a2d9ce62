package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/querycache/observe"
	"github.com/jonwraymond/querycache/resilience"
)

// fetchOp is the in-flight operation of an entry. Its identity decides
// whether a settling operation may still write to the entry.
type fetchOp struct {
	startedAt time.Time

	// cancel aborts waits between retries. The fetch call itself is
	// never canceled.
	cancel context.CancelFunc
}

// fetchEntry runs fn for e, or joins the operation already in flight for
// the same hash. ctx bounds only how long this caller waits.
func (c *Cache) fetchEntry(ctx context.Context, e *Entry, fn FetchFunc) (any, error) {
	ch := c.flight.DoChan(e.hash, func() (any, error) {
		return c.runFetch(context.WithoutCancel(ctx), e, fn)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) runFetch(ctx context.Context, e *Entry, fn FetchFunc) (any, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	op := &fetchOp{startedAt: c.now(), cancel: cancel}

	e, err := c.lockLive(e)
	if err != nil {
		return nil, err
	}
	e.op = op
	e.status = StatusFetching
	cfg := e.effectiveLocked()
	e.enqueueLocked(EventUpdated, true)
	e.mu.Unlock()
	e.dispatch()

	log := c.logger.WithQuery(observe.QueryMeta{Hash: e.hash})
	var (
		attempts int
		data     any
		lastErr  error
	)

	retry := resilience.NewRetry(resilience.RetryConfig{
		Policy: &cfg.Retry,
		Delay:  cfg.RetryDelay,
		OnRetry: func(n int, err error, delay time.Duration) {
			c.metrics.RecordRetry(ctx, observe.QueryMeta{Hash: e.hash, Attempt: attempts})
			log.Warn(ctx, "retrying fetch",
				observe.Field{Key: "retry", Value: n},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err.Error()},
			)
			e.notifyRetry(op)
		},
	})

	err = retry.Execute(waitCtx, func(context.Context) error {
		attempts++
		v, err := c.attempt(ctx, observe.QueryMeta{Hash: e.hash, Attempt: attempts}, fn)
		if err != nil {
			lastErr = err
			e.recordFailure(op)
			return err
		}
		data = v
		return nil
	})
	switch {
	case err == nil:
		// A recovered operation succeeds regardless of earlier attempts.
		lastErr = nil
	case lastErr == nil:
		lastErr = err
	}

	result, applied := e.settle(op, data, lastErr)
	if lastErr == nil {
		return result, nil
	}

	if applied {
		log.Error(ctx, "fetch failed",
			observe.Field{Key: "attempts", Value: attempts},
			observe.Field{Key: "error", Value: lastErr.Error()},
		)
	}
	return nil, &FetchError{Hash: e.hash, Attempts: attempts, Err: lastErr, removed: !applied}
}

// lockLive locks e, or the entry that replaced it under the same hash when
// e was removed before its operation started. The singleflight slot belongs
// to the hash, so callers of the replacement may be waiting on this run.
func (c *Cache) lockLive(e *Entry) (*Entry, error) {
	for {
		e.mu.Lock()
		if !e.removed {
			return e, nil
		}
		e.mu.Unlock()

		live, ok := c.entries.Load(e.hash)
		if !ok || live == e {
			return nil, &FetchError{Hash: e.hash, Err: ErrEntryRemoved, removed: true}
		}
		e = live
	}
}

// attempt runs a single fetch call through the middleware and the optional
// bulkhead.
func (c *Cache) attempt(ctx context.Context, meta observe.QueryMeta, fn FetchFunc) (any, error) {
	exec := c.middleware.Wrap(func(ctx context.Context, _ observe.QueryMeta) (v any, err error) {
		// A panic here would escape on the singleflight goroutine.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cache: fetch panicked: %v", r)
			}
		}()
		return fn(ctx)
	})

	if c.bulkhead == nil {
		return exec(ctx, meta)
	}

	var data any
	err := c.bulkhead.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = exec(ctx, meta)
		return err
	})
	return data, err
}

func (e *Entry) recordFailure(op *fetchOp) {
	e.mu.Lock()
	if e.op == op && !e.removed {
		e.failureCount++
	}
	e.mu.Unlock()
}

func (e *Entry) notifyRetry(op *fetchOp) {
	e.mu.Lock()
	if e.op == op && !e.removed {
		e.enqueueLocked(EventUpdated, true)
	}
	e.mu.Unlock()
	e.dispatch()
}

// settle applies the outcome of op if op is still the entry's current
// operation. It returns the value callers should see and whether the
// outcome was applied.
func (e *Entry) settle(op *fetchOp, data any, err error) (any, bool) {
	e.mu.Lock()
	current := e.op == op && !e.removed
	if current {
		e.op = nil
		if err == nil {
			data = e.applySuccessLocked(data)
		} else {
			e.applyErrorLocked(err)
		}
		e.enqueueLocked(EventUpdated, true, e.hooksLocked(data, err)...)
	}
	e.mu.Unlock()
	e.dispatch()
	return data, current
}
