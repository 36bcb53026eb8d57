package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"polaris-ai/polaris/pkg/catalog"
)

// Common executor errors that can be checked with errors.Is().
var (
	// ErrExhausted is returned when every candidate failed. Callers see a
	// generic upstream-unavailable error; the last failure's cause is
	// retained for logs only.
	ErrExhausted = errors.New("all candidates exhausted")

	// ErrStreamStarted wraps a committed stream's mid-relay failure:
	// content has already been relayed to the caller, so failover is
	// impossible and Recv surfaces it to force termination of the
	// current stream.
	ErrStreamStarted = errors.New("streaming already started")
)

// AttemptError is one upstream attempt's failure, classified for the
// failover decision.
type AttemptError struct {
	// Provider is the provider that failed.
	Provider string

	// StatusCode is the upstream HTTP status (0 for connection-level
	// failures).
	StatusCode int

	// Retryable is whether the executor may fail over to the next
	// candidate.
	Retryable bool

	// Cause is the underlying error, if any.
	Cause error

	// Body is a short excerpt of the upstream error body for logs.
	Body string
}

// Error implements the error interface.
func (e *AttemptError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q attempt failed (status %d): %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("provider %q attempt failed: %v", e.Provider, e.Cause)
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *AttemptError) Unwrap() error {
	return e.Cause
}

// ExhaustedError is returned when all candidates failed.
type ExhaustedError struct {
	// LogicalModel is the requested logical model.
	LogicalModel string

	// Attempted are the provider IDs tried, in order.
	Attempted []string

	// LastError is the final attempt's failure.
	LastError error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all candidates exhausted for logical model %q (attempted: %s, last error: %v)",
		e.LogicalModel, strings.Join(e.Attempted, ", "), e.LastError)
}

// Is implements error matching for errors.Is().
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// classifyConnectionError reports whether err is a connection-level
// failure (timeout, reset, refused connection, TLS failure) as opposed to
// an application-level HTTP error. Connection-level failures always
// qualify for failover; caller cancellation never does.
func classifyConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// url.Error wraps dial, TLS, and proxy failures generically.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "EOF")
}

// retryableStatus reports whether the upstream status code qualifies for
// failover under the provider's configured retryable set.
func retryableStatus(rec *catalog.ProviderRecord, code int) bool {
	if rec != nil && len(rec.RetryableStatusCodes) > 0 {
		return rec.RetryableStatus(code)
	}
	// Without configuration, server-side failures and rate limits fail
	// over; client errors do not.
	return code >= 500 || code == 429
}
