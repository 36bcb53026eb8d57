package upstream

import (
	"encoding/json"
	"net/http"

	"polaris-ai/polaris/pkg/routing"
)

// Request is one caller request to be executed against the candidate
// failover sequence.
type Request struct {
	// LogicalModel is the caller-facing model name, used for metrics
	// attribution and session binding.
	LogicalModel string

	// SessionID, when set, is bound to the winning candidate so the next
	// turn of the conversation prefers the same upstream.
	SessionID string

	// UserID optionally attributes metrics to a caller.
	UserID string

	// APIKeyID optionally attributes metrics to an API key.
	APIKeyID string

	// Stream selects a streamed upstream response.
	Stream bool

	// Payload is the request body. Its "model" field is rewritten to each
	// candidate's physical model ID before dispatch.
	Payload json.RawMessage

	// Header carries caller headers to forward upstream (content
	// negotiation only; credentials are injected per provider).
	Header http.Header
}

// Response is one buffered upstream response.
type Response struct {
	// StatusCode is the upstream HTTP status.
	StatusCode int

	// Header is the upstream response header.
	Header http.Header

	// Body is the full response body.
	Body []byte

	// Candidate is the upstream that served the response.
	Candidate routing.Candidate
}

// Chunk is one streamed response event's payload, relayed verbatim.
type Chunk struct {
	// Data is the raw SSE data payload (without the "data: " prefix).
	Data []byte
}

// Result is the outcome of Execute: exactly one of Response (buffered) or
// Stream (streamed) is set.
type Result struct {
	Response *Response
	Stream   *Stream
}
