package resilience

import (
	"math"
	"time"
)

// Default backoff bounds used by ExponentialDelay.
const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// DefaultRetryCount is the number of retries a policy built with
// DefaultRetryPolicy allows after the initial attempt.
const DefaultRetryCount = 3

type policyKind int

const (
	policyNever policyKind = iota
	policyAlways
	policyCount
	policyPredicate
)

// RetryPolicy decides whether a failed operation is attempted again.
//
// A policy is one of: never retry, always retry, retry up to N times, or a
// caller predicate over the failure count and the latest error. The zero
// value never retries.
type RetryPolicy struct {
	kind      policyKind
	max       int
	predicate func(failureCount int, err error) bool
}

// RetryNever disables retries.
func RetryNever() RetryPolicy {
	return RetryPolicy{kind: policyNever}
}

// RetryAlways retries without limit.
func RetryAlways() RetryPolicy {
	return RetryPolicy{kind: policyAlways}
}

// RetryTimes allows up to n retries after the initial attempt.
// n <= 0 is equivalent to RetryNever.
func RetryTimes(n int) RetryPolicy {
	if n <= 0 {
		return RetryNever()
	}
	return RetryPolicy{kind: policyCount, max: n}
}

// RetryBool maps a boolean retry setting onto a policy: true retries
// forever, false never retries.
func RetryBool(enabled bool) RetryPolicy {
	if enabled {
		return RetryAlways()
	}
	return RetryNever()
}

// RetryIf retries while fn returns true. A nil fn never retries.
func RetryIf(fn func(failureCount int, err error) bool) RetryPolicy {
	if fn == nil {
		return RetryNever()
	}
	return RetryPolicy{kind: policyPredicate, predicate: fn}
}

// DefaultRetryPolicy returns RetryTimes(DefaultRetryCount).
func DefaultRetryPolicy() RetryPolicy {
	return RetryTimes(DefaultRetryCount)
}

// ShouldRetry reports whether another attempt should follow a failure.
// failureCount is the number of failed attempts of the current operation,
// including the one just reported; it is one after the initial attempt
// fails.
func (p RetryPolicy) ShouldRetry(failureCount int, err error) bool {
	switch p.kind {
	case policyAlways:
		return true
	case policyCount:
		return failureCount <= p.max
	case policyPredicate:
		return p.predicate(failureCount, err)
	default:
		return false
	}
}

// String describes the policy for logs.
func (p RetryPolicy) String() string {
	switch p.kind {
	case policyAlways:
		return "always"
	case policyCount:
		return "times"
	case policyPredicate:
		return "predicate"
	default:
		return "never"
	}
}

// DelayFunc returns the wait before retry number attempt (zero based).
type DelayFunc func(attempt int) time.Duration

// ExponentialDelay doubles a one second base per attempt, capped at 30s:
// min(1s * 2^attempt, 30s).
func ExponentialDelay(attempt int) time.Duration {
	return CappedExponential(DefaultBaseDelay, DefaultMaxDelay)(attempt)
}

// CappedExponential builds a DelayFunc computing min(base * 2^attempt, max).
func CappedExponential(base, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		delay := float64(base) * math.Pow(2, float64(attempt))
		if delay > float64(max) {
			return max
		}
		return time.Duration(delay)
	}
}

// ConstantDelay waits d between every attempt.
func ConstantDelay(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}
