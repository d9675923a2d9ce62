package hydration

import (
	"errors"
	"fmt"
)

// Sentinel errors for hydration operations.
var (
	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("hydration: cannot hydrate entry")

	// ErrNilCache is returned when a nil cache is dehydrated or hydrated.
	ErrNilCache = errors.New("hydration: cache is nil")

	// ErrInvalidEnvelope is returned when a signed snapshot fails
	// verification.
	ErrInvalidEnvelope = errors.New("hydration: invalid snapshot envelope")

	// ErrMissingKey is returned when signing or verifying without a key.
	ErrMissingKey = errors.New("hydration: signing key is required")
)

// ParseError reports a snapshot entry that was skipped during hydration.
// It wraps both ErrParse and the underlying cause.
type ParseError struct {
	Hash string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hydration: skipping %s: %v", e.Hash, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }
