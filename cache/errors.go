package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache operations.
var (
	ErrNilCache      = errors.New("cache: cache is nil")
	ErrInvalidKey    = errors.New("cache: key is invalid")
	ErrNilFetch      = errors.New("cache: fetch function is nil")
	ErrNotFound      = errors.New("cache: entry not found")
	ErrEntryRemoved  = errors.New("cache: entry was removed")
	ErrInvalidConfig = errors.New("cache: invalid config")
	ErrTypeMismatch  = errors.New("cache: cached data has unexpected type")
)

// FetchError reports a fetch operation that failed after its retries were
// exhausted. Err is the error of the last attempt.
type FetchError struct {
	Hash     string
	Attempts int
	Err      error

	// removed is set when the entry left the cache before the operation
	// settled; the failure was not recorded on any entry.
	removed bool
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("cache: fetch %s failed after %d attempt(s)", e.Hash, e.Attempts)
	if e.removed {
		msg += " (entry removed)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports ErrEntryRemoved for operations discarded by Remove or Clear.
func (e *FetchError) Is(target error) bool {
	return target == ErrEntryRemoved && e.removed
}

func invalidKey(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidKey, fmt.Sprintf(format, args...))
}
