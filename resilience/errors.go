package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrBulkheadFull is returned when no fetch slot became available in time.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")
)
