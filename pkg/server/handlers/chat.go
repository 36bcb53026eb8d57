package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"polaris-ai/polaris/pkg/gateway"
	"polaris-ai/polaris/pkg/server/middleware"
	"polaris-ai/polaris/pkg/upstream"
)

// maxRequestBody bounds inbound completion request payloads.
const maxRequestBody = 10 << 20 // 10MB

// chatRequestEnvelope extracts the routing-relevant fields from the inbound
// payload. The payload itself is forwarded opaquely.
type chatRequestEnvelope struct {
	Model   string `json:"model"`
	Stream  bool   `json:"stream"`
	User    string `json:"user,omitempty"`
	Session string `json:"session_id,omitempty"`
}

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewChatHandler creates the chat completions handler.
func NewChatHandler(p Pipeline) *ChatHandler {
	return &ChatHandler{
		pipeline: p,
		logger:   slog.Default().With("component", "chat_handler"),
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}

	var envelope chatRequestEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "request body is not valid JSON")
		return
	}
	if envelope.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	sessionID := envelope.Session
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}

	req := &gateway.ChatRequest{
		LogicalModel: envelope.Model,
		SessionID:    sessionID,
		Stream:       envelope.Stream,
		Payload:      body,
	}

	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	h.logger.InfoContext(ctx, "processing chat completion request",
		"request_id", requestID,
		"model", envelope.Model,
		"stream", envelope.Stream,
		"session_id", sessionID,
	)

	result, err := h.pipeline.ResolveAndExecute(ctx, callerFromRequest(r), req)
	if err != nil {
		h.writeExecuteError(ctx, w, envelope.Model, err)
		return
	}

	if result.Stream != nil {
		h.relayStream(ctx, w, result.Stream, requestID)
		return
	}
	h.relayBuffered(w, result.Response)
}

func (h *ChatHandler) writeExecuteError(ctx context.Context, w http.ResponseWriter, model string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away, nothing useful to write.

	case errors.Is(err, gateway.ErrModelNotFound):
		writeError(w, http.StatusNotFound, "invalid_request_error",
			fmt.Sprintf("The model %q does not exist or you do not have access to it.", model))

	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "server_error",
			"The model is temporarily unavailable. Please try again later.")

	default:
		h.logger.ErrorContext(ctx, "chat completion failed", "model", model, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error",
			"An internal error occurred. Please try again later.")
	}
}

// relayBuffered copies a non-streaming provider response to the client.
func (h *ChatHandler) relayBuffered(w http.ResponseWriter, resp *upstream.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// relayStream forwards SSE chunks to the client as they arrive, flushing
// after each one.
func (h *ChatHandler) relayStream(ctx context.Context, w http.ResponseWriter, stream *upstream.Stream, requestID string) {
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	start := time.Now()
	chunkCount := 0
	completed := false

	for {
		chunk, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				completed = true
			} else if !errors.Is(err, context.Canceled) {
				h.logger.WarnContext(ctx, "stream interrupted",
					"request_id", requestID,
					"chunks_relayed", chunkCount,
					"error", err,
				)
			}
			break
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk.Data); err != nil {
			// Client disconnected mid-stream.
			break
		}
		if canFlush {
			flusher.Flush()
		}
		chunkCount++
	}

	// Only a stream that reached its natural end gets the terminator: a
	// truncated stream must stay distinguishable from a complete one.
	if completed {
		if _, err := io.WriteString(w, "data: [DONE]\n\n"); err == nil && canFlush {
			flusher.Flush()
		}
	}

	h.logger.InfoContext(ctx, "stream completed",
		"request_id", requestID,
		"chunks", chunkCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
