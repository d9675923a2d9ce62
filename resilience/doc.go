// Package resilience provides the retry and concurrency primitives used by
// the fetch coordinator.
//
// # Retry
//
// A RetryPolicy answers "should this failure be retried": never, always, up
// to N times, or by predicate. A DelayFunc answers "how long to wait"; the
// default is ExponentialDelay, min(1s * 2^attempt, 30s).
//
//	policy := resilience.RetryTimes(2)
//	r := resilience.NewRetry(resilience.RetryConfig{
//	    Policy: &policy,
//	    Delay:  resilience.ExponentialDelay,
//	})
//
//	err := r.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
// # Bulkhead
//
// Bulkhead caps how many fetch functions run at the same time across a
// cache. Callers over the limit wait for a slot, optionally bounded by
// MaxWait.
package resilience
