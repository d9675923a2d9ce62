package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrNilCache indicates a cache checker without a cache.
	ErrNilCache = errors.New("health: cache is nil")
)
