package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// Policy decides whether a failure is retried.
	// Default: DefaultRetryPolicy (3 retries)
	Policy *RetryPolicy

	// Delay computes the wait before each retry.
	// Default: ExponentialDelay
	Delay DelayFunc

	// Jitter adds up to 25% randomness to each delay.
	// Default: false
	Jitter bool

	// OnRetry is called before waiting for each retry. attempt is the
	// one-based number of the retry about to happen.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
	policy RetryPolicy
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	policy := DefaultRetryPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}
	if config.Delay == nil {
		config.Delay = ExponentialDelay
	}

	return &Retry{config: config, policy: policy}
}

// Execute runs op until it succeeds or the policy gives up.
//
// The error of the last attempt is returned when the policy stops retrying.
// If ctx ends while waiting between attempts, ctx.Err() is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	for retries := 0; ; retries++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if !r.policy.ShouldRetry(retries+1, err) {
			return err
		}

		delay := r.calculateDelay(retries)

		if r.config.OnRetry != nil {
			r.config.OnRetry(retries+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	delay := r.config.Delay(attempt)
	if delay < 0 {
		delay = 0
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		jitter := time.Duration(rand.Int64N(int64(delay / 4)))
		delay = delay + jitter
	}

	return delay
}

// Policy returns the effective retry policy.
func (r *Retry) Policy() RetryPolicy {
	return r.policy
}
