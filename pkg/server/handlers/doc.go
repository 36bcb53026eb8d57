// Package handlers implements the HTTP handlers for the gateway: the
// OpenAI-compatible chat completions endpoint with SSE streaming, the model
// listing endpoint, and the admin surface for health, metrics history, and
// catalog invalidation.
package handlers
