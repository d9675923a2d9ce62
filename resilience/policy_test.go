package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	errTest := errors.New("boom")

	tests := []struct {
		name         string
		policy       RetryPolicy
		failureCount int
		want         bool
	}{
		{"zero value never", RetryPolicy{}, 0, false},
		{"never", RetryNever(), 0, false},
		{"always at first failure", RetryAlways(), 1, true},
		{"always at large count", RetryAlways(), 1000, true},
		{"bool true", RetryBool(true), 50, true},
		{"bool false", RetryBool(false), 0, false},
		{"times first failure", RetryTimes(2), 1, true},
		{"times at limit", RetryTimes(2), 2, true},
		{"times past limit", RetryTimes(2), 3, false},
		{"times zero", RetryTimes(0), 1, false},
		{"times negative", RetryTimes(-1), 1, false},
		{"predicate true", RetryIf(func(n int, err error) bool { return n < 5 && err == errTest }), 4, true},
		{"predicate false", RetryIf(func(n int, err error) bool { return n < 5 }), 5, false},
		{"nil predicate", RetryIf(nil), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ShouldRetry(tt.failureCount, errTest); got != tt.want {
				t.Errorf("ShouldRetry(%d) = %v, want %v", tt.failureCount, got, tt.want)
			}
		})
	}
}

func TestExponentialDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := ExponentialDelay(tt.attempt); got != tt.want {
			t.Errorf("ExponentialDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCappedExponential(t *testing.T) {
	delay := CappedExponential(10*time.Millisecond, 50*time.Millisecond)

	if got := delay(2); got != 40*time.Millisecond {
		t.Errorf("delay(2) = %v, want 40ms", got)
	}
	if got := delay(3); got != 50*time.Millisecond {
		t.Errorf("delay(3) = %v, want 50ms", got)
	}
}

func TestRetryPolicy_String(t *testing.T) {
	if RetryTimes(3).String() != "times" {
		t.Errorf("String() = %q, want times", RetryTimes(3).String())
	}
	if RetryNever().String() != "never" {
		t.Errorf("String() = %q, want never", RetryNever().String())
	}
}
