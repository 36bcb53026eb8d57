// Package upstream provides a mock provider API server for executor and
// handler tests.
package upstream

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines how the mock server answers one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
	Headers    map[string]string

	// StreamChunks, when set, makes the endpoint answer with SSE. Each
	// entry is sent as one "data:" event, followed by a [DONE] event.
	StreamChunks []string

	// FailAfterChunks, when > 0 with StreamChunks set, aborts the
	// connection after that many chunks without sending [DONE].
	FailAfterChunks int

	// StallFirstChunk, when > 0 with StreamChunks set, sends the response
	// headers and then waits this long (or until the client disconnects)
	// before the first chunk.
	StallFirstChunk time.Duration
}

// MockServer simulates a provider chat completions API. It records the
// requests it receives so tests can assert attempt ordering.
type MockServer struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses map[string]MockResponse
	requests  []*http.Request
	bodies    []string
}

// NewMockServer creates a started mock server. Callers must Close it.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses: make(map[string]MockResponse),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts the server down.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse configures the answer for a path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = response
}

// RequestCount reports how many requests arrived.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// LastBody returns the most recent request body, or empty.
func (ms *MockServer) LastBody() string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.bodies) == 0 {
		return ""
	}
	return ms.bodies[len(ms.bodies)-1]
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, r)
	ms.bodies = append(ms.bodies, string(body))
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		time.Sleep(response.Delay)
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamChunks) > 0 {
		ms.handleStream(w, r, response)
		return
	}

	status := response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response.Body))
}

func (ms *MockServer) handleStream(w http.ResponseWriter, r *http.Request, response MockResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	if response.StallFirstChunk > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(response.StallFirstChunk):
		}
	}

	for i, chunk := range response.StreamChunks {
		if response.FailAfterChunks > 0 && i == response.FailAfterChunks {
			// Abort mid-stream without a [DONE] marker.
			panic(http.ErrAbortHandler)
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if response.FailAfterChunks == 0 {
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}
