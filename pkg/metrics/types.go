package metrics

import (
	"time"

	"polaris-ai/polaris/pkg/catalog"
)

// OutcomeKind classifies how an upstream attempt ended.
type OutcomeKind string

// Outcome kinds. Cancelled is caller-initiated and is tracked separately
// from provider errors: it must not count against a provider's error rate.
const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeError     OutcomeKind = "error"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is one upstream attempt result reported by the executor.
type Outcome struct {
	// ProviderID is the provider that served (or failed) the attempt.
	ProviderID string

	// LogicalModel is the caller-facing model name.
	LogicalModel string

	// Transport is the transport used for the attempt.
	Transport catalog.Transport

	// IsStream is true for streaming attempts.
	IsStream bool

	// UserID optionally attributes the outcome to a caller.
	UserID string

	// APIKeyID optionally attributes the outcome to an API key.
	APIKeyID string

	// Kind is how the attempt ended.
	Kind OutcomeKind

	// LatencyMS is the measured attempt latency in milliseconds.
	LatencyMS int64

	// StatusCode is the upstream HTTP status, 0 for connection-level
	// failures.
	StatusCode int
}

// BucketKey identifies one durable metrics bucket. At most one bucket
// exists per key per window; all writes are accumulate-upserts.
type BucketKey struct {
	ProviderID   string
	LogicalModel string
	Transport    catalog.Transport
	IsStream     bool
	UserID       string
	APIKeyID     string
	WindowStart  time.Time
}

// Bucket is one time-windowed aggregate row.
type Bucket struct {
	BucketKey

	SuccessRequests   int64
	ErrorRequests     int64
	TotalRequests     int64
	CancelledRequests int64
	LatencyAvgMS      float64
	LatencyP95MS      float64
	LatencyP99MS      float64
	ErrorRate         float64
	Status            catalog.ProviderStatus
}

// HealthSnapshot is the cache-resident view of one provider's health.
//
// If no probe has ever completed for a provider, the snapshot falls back
// to the provider's configured status and timestamp; absence of a snapshot
// never means "provider does not exist".
type HealthSnapshot struct {
	ProviderID          string                 `json:"provider_id"`
	Status              catalog.ProviderStatus `json:"status"`
	Timestamp           time.Time              `json:"timestamp"`
	ResponseTimeMS      int64                  `json:"response_time_ms"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	LastSuccessfulCheck time.Time              `json:"last_successful_check"`
}

// LiveStats are the ephemeral per-(logical model, provider) aggregates the
// selector reads on the hot path.
type LiveStats struct {
	SuccessRequests int64
	ErrorRequests   int64
	TotalRequests   int64
	AvgLatencyMS    float64
}

// ErrorRate returns the fraction of failed requests, 0 when no samples.
func (s LiveStats) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.ErrorRequests) / float64(s.TotalRequests)
}
