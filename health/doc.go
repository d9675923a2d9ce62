// Package health reports the health of a query cache.
//
// A Checker is any component that can report its health status. The Status
// type represents the health state: Healthy, Degraded, or Unhealthy.
//
// # Cache Health
//
// CacheChecker counts the entries of a cache by status and judges the share
// of entries whose last fetch failed:
//
//	checker := health.NewCacheChecker(c, health.CacheCheckerConfig{
//	    WarningThreshold:  0.25,
//	    CriticalThreshold: 0.50,
//	})
//
//	result := checker.Check(ctx)
//	if result.Status == health.StatusUnhealthy {
//	    log.Printf("cache: %s", result.Message)
//	}
//
// Result.Details carries the counts by status, the stale and observer
// counts, and the error percentage.
package health
