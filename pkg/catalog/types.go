package catalog

import "time"

// Transport identifies how an upstream provider is reached.
type Transport string

// Supported transports.
const (
	TransportHTTP Transport = "http"
	TransportSDK  Transport = "sdk"
)

// ProviderStatus is a provider's operational classification.
type ProviderStatus string

// Provider status values. StatusDown is set either by configuration or by
// the health prober; StatusDegraded is derived from trailing error rates.
const (
	StatusHealthy  ProviderStatus = "healthy"
	StatusDegraded ProviderStatus = "degraded"
	StatusDown     ProviderStatus = "down"
)

// Upstream is one concrete (provider, physical model) pair able to serve a
// logical model.
type Upstream struct {
	// ProviderID identifies the provider configuration record.
	ProviderID string `json:"provider_id"`

	// PhysicalModelID is the provider-side model identifier sent upstream.
	PhysicalModelID string `json:"physical_model_id"`

	// Transport is how the provider is reached.
	Transport Transport `json:"transport"`

	// Weight is the configured routing weight (higher = more traffic).
	Weight float64 `json:"weight"`

	// Capabilities are free-form capability flags (e.g. "vision", "tools").
	Capabilities []string `json:"capabilities,omitempty"`
}

// LogicalModel is the caller-facing model entry.
//
// A published LogicalModel always has at least one upstream; "no upstreams"
// is represented as the model not existing, never as an empty list.
type LogicalModel struct {
	// ID is the logical model name callers request.
	ID string `json:"id"`

	// Upstreams is the ordered candidate list, as declared by provider
	// configuration.
	Upstreams []Upstream `json:"upstreams"`
}

// ModelMapping declares one physical model a provider serves and the
// logical name it is published under.
type ModelMapping struct {
	// PhysicalID is the provider-side model identifier.
	PhysicalID string `json:"physical_id"`

	// LogicalID is the caller-facing name this model is grouped under.
	LogicalID string `json:"logical_id"`

	// Capabilities are optional capability flags for this mapping.
	Capabilities []string `json:"capabilities,omitempty"`
}

// ProviderRecord is one provider's configuration as read from the durable
// store. The gateway core treats these records as read-only; they are
// owned by the external provider CRUD collaborators.
type ProviderRecord struct {
	// ID is the provider identifier.
	ID string

	// BaseURL is the provider's API endpoint.
	BaseURL string

	// APIKey is the upstream credential, forwarded as a bearer token.
	APIKey string

	// Transport is how the provider is reached.
	Transport Transport

	// Weight is the configured routing weight.
	Weight float64

	// MaxQPS is an advisory per-provider request ceiling.
	MaxQPS int

	// RetryableStatusCodes are upstream HTTP statuses that qualify for
	// failover to the next candidate.
	RetryableStatusCodes []int

	// Status is the provider's configured status. The health prober and
	// the aggregator may override this at runtime.
	Status ProviderStatus

	// LastCheck is the configured status's timestamp.
	LastCheck time.Time

	// Models are the physical models this provider declares, keyed to
	// logical names.
	Models []ModelMapping
}

// RetryableStatus reports whether code is in the provider's configured
// retryable set.
func (r *ProviderRecord) RetryableStatus(code int) bool {
	for _, c := range r.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}
