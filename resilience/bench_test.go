package resilience

import (
	"context"
	"errors"
	"testing"
)

// BenchmarkRetry_Success measures the happy path with no retries.
func BenchmarkRetry_Success(b *testing.B) {
	r := NewRetry(RetryConfig{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

// BenchmarkRetry_ImmediateRetries measures retry loop overhead with zero delay.
func BenchmarkRetry_ImmediateRetries(b *testing.B) {
	policy := RetryTimes(3)
	r := NewRetry(RetryConfig{Policy: &policy, Delay: ConstantDelay(0)})
	ctx := context.Background()
	errFail := errors.New("fail")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, func(ctx context.Context) error {
			return errFail
		})
	}
}

// BenchmarkBulkhead_Execute measures slot acquire/release.
func BenchmarkBulkhead_Execute(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 100})
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = bh.Execute(ctx, func(ctx context.Context) error {
				return nil
			})
		}
	})
}

// BenchmarkExponentialDelay measures delay computation.
func BenchmarkExponentialDelay(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ExponentialDelay(i % 8)
	}
}
