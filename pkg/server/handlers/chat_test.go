package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/gateway"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
	"polaris-ai/polaris/pkg/upstream"
)

// stubPipeline is a canned-response Pipeline for handler tests.
type stubPipeline struct {
	result  *upstream.Result
	execErr error

	models    []catalog.LogicalModel
	modelsErr error

	health    []gateway.ProviderHealth
	healthErr error

	buckets    []metrics.Bucket
	historyErr error

	invalidateErr error

	lastCaller   gateway.CallerContext
	lastReq      *gateway.ChatRequest
	lastProvider string
	lastModel    string
	lastSince    time.Time
	invalidated  int
}

func (s *stubPipeline) ResolveAndExecute(ctx context.Context, caller gateway.CallerContext, req *gateway.ChatRequest) (*upstream.Result, error) {
	s.lastCaller = caller
	s.lastReq = req
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.result, nil
}

func (s *stubPipeline) ListModels(ctx context.Context) ([]catalog.LogicalModel, error) {
	return s.models, s.modelsErr
}

func (s *stubPipeline) GetProviderHealth(ctx context.Context) ([]gateway.ProviderHealth, error) {
	return s.health, s.healthErr
}

func (s *stubPipeline) GetMetricsHistory(ctx context.Context, providerID, logicalModel string, since time.Time) ([]metrics.Bucket, error) {
	s.lastProvider = providerID
	s.lastModel = logicalModel
	s.lastSince = since
	return s.buckets, s.historyErr
}

func (s *stubPipeline) InvalidateCatalog(ctx context.Context) error {
	s.invalidated++
	return s.invalidateErr
}

func bufferedResult(status int, body string) *upstream.Result {
	return &upstream.Result{Response: &upstream.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
		Candidate:  routing.Candidate{ProviderID: "provider-a"},
	}}
}

func postChat(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatHandler_BufferedSuccess(t *testing.T) {
	stub := &stubPipeline{result: bufferedResult(200, `{"id":"resp-1"}`)}
	handler := NewChatHandler(stub)

	rec := postChat(handler, `{"model":"chat-large","messages":[]}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"id":"resp-1"}` {
		t.Errorf("body = %q, want %q", got, `{"id":"resp-1"}`)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if stub.lastReq.LogicalModel != "chat-large" {
		t.Errorf("LogicalModel = %q, want chat-large", stub.lastReq.LogicalModel)
	}
	if stub.lastReq.Stream {
		t.Error("Stream = true, want false")
	}
}

func TestChatHandler_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "not json", http.StatusBadRequest},
		{"missing model", http.MethodPost, `{"messages":[]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewChatHandler(&stubPipeline{})
			req := httptest.NewRequest(tt.method, "/v1/chat/completions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), "invalid_request_error") {
				t.Errorf("body = %q, want invalid_request_error envelope", rec.Body.String())
			}
		})
	}
}

func TestChatHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		execErr    error
		wantStatus int
		wantType   string
	}{
		{"model not found", gateway.ErrModelNotFound, http.StatusNotFound, "invalid_request_error"},
		{"upstream unavailable", gateway.ErrUpstreamUnavailable, http.StatusBadGateway, "server_error"},
		{"internal error", io.ErrUnexpectedEOF, http.StatusInternalServerError, "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewChatHandler(&stubPipeline{execErr: tt.execErr})
			rec := postChat(handler, `{"model":"chat-large"}`, nil)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantType) {
				t.Errorf("body = %q, want type %q", rec.Body.String(), tt.wantType)
			}
		})
	}
}

func TestChatHandler_SessionResolution(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		want    string
	}{
		{
			name: "from body",
			body: `{"model":"chat-large","session_id":"sess-body"}`,
			want: "sess-body",
		},
		{
			name:    "from header",
			body:    `{"model":"chat-large"}`,
			headers: map[string]string{"X-Session-ID": "sess-header"},
			want:    "sess-header",
		},
		{
			name:    "body wins over header",
			body:    `{"model":"chat-large","session_id":"sess-body"}`,
			headers: map[string]string{"X-Session-ID": "sess-header"},
			want:    "sess-body",
		},
		{
			name: "absent",
			body: `{"model":"chat-large"}`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubPipeline{result: bufferedResult(200, "{}")}
			postChat(NewChatHandler(stub), tt.body, tt.headers)

			if stub.lastReq.SessionID != tt.want {
				t.Errorf("SessionID = %q, want %q", stub.lastReq.SessionID, tt.want)
			}
		})
	}
}

func TestChatHandler_CallerHeaders(t *testing.T) {
	stub := &stubPipeline{result: bufferedResult(200, "{}")}
	postChat(NewChatHandler(stub), `{"model":"chat-large"}`, map[string]string{
		UserIDHeader:           "user-1",
		APIKeyIDHeader:         "key-1",
		AllowedProvidersHeader: "provider-a, provider-b,,provider-c ",
	})

	if stub.lastCaller.UserID != "user-1" || stub.lastCaller.APIKeyID != "key-1" {
		t.Errorf("caller = %+v, want user-1/key-1", stub.lastCaller)
	}
	want := []string{"provider-a", "provider-b", "provider-c"}
	if len(stub.lastCaller.AllowedProviders) != len(want) {
		t.Fatalf("AllowedProviders = %v, want %v", stub.lastCaller.AllowedProviders, want)
	}
	for i, id := range want {
		if stub.lastCaller.AllowedProviders[i] != id {
			t.Errorf("AllowedProviders[%d] = %q, want %q", i, stub.lastCaller.AllowedProviders[i], id)
		}
	}
}

func TestChatHandler_UnrestrictedCallerHasNoAllowList(t *testing.T) {
	stub := &stubPipeline{result: bufferedResult(200, "{}")}
	postChat(NewChatHandler(stub), `{"model":"chat-large"}`, nil)

	if stub.lastCaller.AllowedProviders != nil {
		t.Errorf("AllowedProviders = %v, want nil", stub.lastCaller.AllowedProviders)
	}
}

func TestChatHandler_StreamRelay(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"delta\":\"one\"}\n\ndata: {\"delta\":\"two\"}\n\ndata: [DONE]\n\n"))
	stream := upstream.NewStream(routing.Candidate{ProviderID: "provider-a"}, body)

	stub := &stubPipeline{result: &upstream.Result{Stream: stream}}
	rec := postChat(NewChatHandler(stub), `{"model":"chat-large","stream":true}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	want := "data: {\"delta\":\"one\"}\n\ndata: {\"delta\":\"two\"}\n\ndata: [DONE]\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("stream body = %q, want %q", got, want)
	}
	if !stub.lastReq.Stream {
		t.Error("Stream = false, want true")
	}
}

// truncatedBody yields its data and then fails instead of ending cleanly.
type truncatedBody struct {
	data string
	err  error
}

func (b *truncatedBody) Read(p []byte) (int, error) {
	if len(b.data) > 0 {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	return 0, b.err
}

func (b *truncatedBody) Close() error { return nil }

func TestChatHandler_TruncatedStreamOmitsDoneMarker(t *testing.T) {
	body := &truncatedBody{
		data: "data: {\"delta\":\"one\"}\n\n",
		err:  io.ErrUnexpectedEOF,
	}
	stream := upstream.NewStream(routing.Candidate{ProviderID: "provider-a"}, body)

	stub := &stubPipeline{result: &upstream.Result{Stream: stream}}
	rec := postChat(NewChatHandler(stub), `{"model":"chat-large","stream":true}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// The relayed prefix arrives, but an interrupted stream must not be
	// terminated as if it completed.
	want := "data: {\"delta\":\"one\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("stream body = %q, want %q", got, want)
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Error("truncated stream body contains [DONE]")
	}
}
