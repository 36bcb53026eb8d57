package routing

import (
	"time"

	"polaris-ai/polaris/pkg/catalog"
)

// Candidate is one ranked (provider, physical model, transport) option for
// a request. The selector's output ordering is the failover sequence the
// executor consumes.
type Candidate struct {
	// ProviderID is the provider to attempt.
	ProviderID string

	// PhysicalModelID is the provider-side model identifier.
	PhysicalModelID string

	// Transport is how the provider is reached.
	Transport catalog.Transport
}

// Session is one conversation's binding to a previously chosen upstream.
// Once bound, a session deterministically routes to the same (provider,
// model) until it expires or is explicitly rebound.
type Session struct {
	// SessionID identifies the conversation or request series.
	SessionID string

	// LogicalModel is the logical model the session was bound under.
	LogicalModel string

	// ProviderID is the bound provider.
	ProviderID string

	// ModelID is the bound physical model.
	ModelID string

	// CreatedAt is when the binding was first established.
	CreatedAt time.Time

	// LastAccessed is refreshed on every read; the idle TTL slides
	// from here.
	LastAccessed time.Time
}
