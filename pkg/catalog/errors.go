package catalog

import (
	"errors"
	"fmt"
)

// Common catalog errors that can be checked with errors.Is().
var (
	// ErrModelNotFound is returned when a logical model is unknown. It is
	// deliberately also used when a caller has no accessible upstream for
	// an existing model, so the two cases are indistinguishable to callers.
	ErrModelNotFound = errors.New("logical model not found")

	// ErrStoreUnavailable is returned when the provider configuration
	// store cannot be reached during a rebuild and no cached entry exists
	// to serve instead.
	ErrStoreUnavailable = errors.New("provider configuration store unavailable")
)

// ModelNotFoundError is returned when a logical model cannot be resolved.
type ModelNotFoundError struct {
	// LogicalID is the requested logical model name.
	LogicalID string
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("logical model %q not found", e.LogicalID)
}

// Is implements error matching for errors.Is().
func (e *ModelNotFoundError) Is(target error) bool {
	return target == ErrModelNotFound
}

// StoreUnavailableError is returned when a catalog rebuild fails and no
// stale entry can serve the read.
type StoreUnavailableError struct {
	// Cause is the underlying store error.
	Cause error
}

// Error implements the error interface.
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("provider configuration store unavailable: %v", e.Cause)
}

// Is implements error matching for errors.Is().
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Cause
}
