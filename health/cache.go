package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/querycache/cache"
)

// CacheCheckerConfig configures the cache health checker.
type CacheCheckerConfig struct {
	// WarningThreshold is the share of failed entries that reports degraded.
	// Value should be between 0 and 1. Default: 0.25
	WarningThreshold float64

	// CriticalThreshold is the share of failed entries that reports
	// unhealthy. Value should be between 0 and 1. Default: 0.5
	CriticalThreshold float64

	// MinEntries is the number of entries below which the error share is
	// not judged, so a single failure in a near-empty cache stays healthy.
	// Default: 0
	MinEntries int
}

// CacheChecker reports the health of a cache from the status of its
// entries.
type CacheChecker struct {
	cache  *cache.Cache
	config CacheCheckerConfig
}

// NewCacheChecker creates a checker for c.
func NewCacheChecker(c *cache.Cache, config CacheCheckerConfig) *CacheChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.25
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold > 1 {
		config.CriticalThreshold = 0.5
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.25, 1)
	}
	if config.MinEntries < 0 {
		config.MinEntries = 0
	}

	return &CacheChecker{cache: c, config: config}
}

// Name returns "cache".
func (c *CacheChecker) Name() string {
	return "cache"
}

// Check counts entries by status and compares the share of failed entries
// against the thresholds.
func (c *CacheChecker) Check(ctx context.Context) Result {
	start := time.Now()

	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	if c.cache == nil {
		return Unhealthy("cache not configured", ErrNilCache)
	}

	var idle, fetching, success, failed, stale, observers int
	for _, e := range c.cache.Entries() {
		st := e.State()
		switch st.Status {
		case cache.StatusIdle:
			idle++
		case cache.StatusFetching:
			fetching++
		case cache.StatusSuccess:
			success++
		case cache.StatusError:
			failed++
		}
		if st.IsStale {
			stale++
		}
		observers += st.ObserverCount
	}

	total := idle + fetching + success + failed
	ratio := 0.0
	if total > 0 {
		ratio = float64(failed) / float64(total)
	}

	details := map[string]any{
		"entries":       total,
		"idle":          idle,
		"fetching":      fetching,
		"success":       success,
		"error":         failed,
		"stale":         stale,
		"observers":     observers,
		"error_percent": ratio * 100,
	}

	if total < c.config.MinEntries || total == 0 {
		return Healthy(fmt.Sprintf("%d entries", total)).
			WithDetails(details).WithDuration(time.Since(start))
	}

	if ratio >= c.config.CriticalThreshold {
		return Unhealthy(
			fmt.Sprintf("failed entries critical: %.1f%%", ratio*100),
			ErrCheckFailed,
		).WithDetails(details).WithDuration(time.Since(start))
	}

	if ratio >= c.config.WarningThreshold {
		return Degraded(
			fmt.Sprintf("failed entries high: %.1f%%", ratio*100),
		).WithDetails(details).WithDuration(time.Since(start))
	}

	return Healthy(
		fmt.Sprintf("failed entries normal: %.1f%%", ratio*100),
	).WithDetails(details).WithDuration(time.Since(start))
}
