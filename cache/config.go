package cache

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/jonwraymond/querycache/resilience"
)

// Timer sentinels. An infinite stale time keeps data fresh until it is
// invalidated; an infinite cache time disables garbage collection.
const (
	StaleTimeInfinite time.Duration = math.MaxInt64
	CacheTimeInfinite time.Duration = math.MaxInt64
)

// DefaultCacheTime is how long an entry without observers is kept.
const DefaultCacheTime = 5 * time.Minute

// FetchFunc loads the data for one key. It may be invoked again on retry,
// so it must be safe to re-run. The context is detached from the caller
// that started the operation, so callers that give up do not abort a fetch
// shared with other callers.
type FetchFunc func(ctx context.Context) (any, error)

// Config is the per-entry query configuration.
type Config struct {
	// StaleTime is how long data stays fresh after a successful fetch.
	// Zero or negative means stale immediately.
	StaleTime time.Duration

	// CacheTime is how long an entry with no observers is kept before it
	// is removed.
	CacheTime time.Duration

	// Retry decides whether a failed attempt is retried.
	Retry resilience.RetryPolicy

	// RetryDelay computes the wait before retry n (zero-based).
	RetryDelay resilience.DelayFunc

	// IsDataEqual reports whether new data may be discarded in favor of
	// the currently cached value.
	IsDataEqual func(a, b any) bool

	// InitialData seeds a newly created entry when HasInitialData is set.
	InitialData    any
	HasInitialData bool

	// Terminal-transition callbacks, each invoked once per settled fetch.
	OnSuccess func(data any)
	OnError   func(err error)
	OnSettled func(data any, err error)

	// Observer-driven refetch triggers.
	RefetchOnMount       bool
	RefetchOnWindowFocus bool
	RefetchInterval      time.Duration

	// Fetch is the function used by refetch triggers.
	Fetch FetchFunc
}

// DefaultConfig returns the process-wide query defaults.
func DefaultConfig() Config {
	return Config{
		StaleTime:            0,
		CacheTime:            DefaultCacheTime,
		Retry:                resilience.DefaultRetryPolicy(),
		RetryDelay:           resilience.ExponentialDelay,
		IsDataEqual:          reflect.DeepEqual,
		RefetchOnMount:       true,
		RefetchOnWindowFocus: true,
	}
}

// Validate checks the configuration for values no entry can run with.
func (c Config) Validate() error {
	if c.CacheTime < 0 {
		return fmt.Errorf("%w: negative cache time %v", ErrInvalidConfig, c.CacheTime)
	}
	if c.RefetchInterval < 0 {
		return fmt.Errorf("%w: negative refetch interval %v", ErrInvalidConfig, c.RefetchInterval)
	}
	return nil
}

// withDefaults fills unset function fields so a Config is always runnable.
func (c Config) withDefaults() Config {
	if c.RetryDelay == nil {
		c.RetryDelay = resilience.ExponentialDelay
	}
	if c.IsDataEqual == nil {
		c.IsDataEqual = reflect.DeepEqual
	}
	return c
}

// QueryOption overrides one query setting. Options are layered: cache
// defaults, then options stored on the entry, then per-call options.
type QueryOption func(*Config)

func applyOptions(cfg Config, opts []QueryOption) Config {
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithStaleTime sets how long data stays fresh.
func WithStaleTime(d time.Duration) QueryOption {
	return func(c *Config) { c.StaleTime = d }
}

// WithCacheTime sets how long an unobserved entry is kept.
func WithCacheTime(d time.Duration) QueryOption {
	return func(c *Config) { c.CacheTime = d }
}

// WithRetry sets the retry policy.
func WithRetry(p resilience.RetryPolicy) QueryOption {
	return func(c *Config) { c.Retry = p }
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(fn resilience.DelayFunc) QueryOption {
	return func(c *Config) { c.RetryDelay = fn }
}

// WithIsDataEqual sets the data equality function.
func WithIsDataEqual(fn func(a, b any) bool) QueryOption {
	return func(c *Config) { c.IsDataEqual = fn }
}

// WithInitialData seeds a newly created entry with data. It has no effect
// on an entry that already exists.
func WithInitialData(data any) QueryOption {
	return func(c *Config) {
		c.InitialData = data
		c.HasInitialData = true
	}
}

// WithOnSuccess registers a callback for successful fetches.
func WithOnSuccess(fn func(data any)) QueryOption {
	return func(c *Config) { c.OnSuccess = fn }
}

// WithOnError registers a callback for failed fetches.
func WithOnError(fn func(err error)) QueryOption {
	return func(c *Config) { c.OnError = fn }
}

// WithOnSettled registers a callback for every settled fetch.
func WithOnSettled(fn func(data any, err error)) QueryOption {
	return func(c *Config) { c.OnSettled = fn }
}

// WithRefetchOnMount controls refetching when an observer subscribes to
// absent, stale or failed data.
func WithRefetchOnMount(enabled bool) QueryOption {
	return func(c *Config) { c.RefetchOnMount = enabled }
}

// WithRefetchOnWindowFocus controls refetching on Cache.Focus.
func WithRefetchOnWindowFocus(enabled bool) QueryOption {
	return func(c *Config) { c.RefetchOnWindowFocus = enabled }
}

// WithRefetchInterval refetches periodically while the observer is subscribed.
func WithRefetchInterval(d time.Duration) QueryOption {
	return func(c *Config) { c.RefetchInterval = d }
}

// WithFetch sets the fetch function used by refetch triggers.
func WithFetch(fn FetchFunc) QueryOption {
	return func(c *Config) { c.Fetch = fn }
}
