package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoCandidates is returned when a logical model resolves to no
	// candidate the caller may use. It intentionally covers both "model
	// unknown" and "model inaccessible" so callers cannot distinguish
	// the existence of providers they have no access to.
	ErrNoCandidates = errors.New("no candidates for logical model")
)

// NoCandidatesError is returned when selection yields an empty failover
// sequence. The reason is kept for logs only and must not reach callers.
type NoCandidatesError struct {
	// LogicalModel is the requested logical model name.
	LogicalModel string

	// Reason explains the empty result for operators
	// ("model unknown", "no accessible provider", "all providers down").
	Reason string
}

// Error implements the error interface.
func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("no candidates for logical model %q: %s", e.LogicalModel, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *NoCandidatesError) Is(target error) bool {
	return target == ErrNoCandidates
}
