package upstream

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/egress"
)

// ClientConfig tunes the upstream HTTP client.
type ClientConfig struct {
	// AttemptTimeout bounds one buffered attempt end-to-end, and the time
	// to the first chunk for streamed attempts. Default: 60s.
	AttemptTimeout time.Duration

	// MaxIdleConnsPerHost sizes the connection pool per upstream.
	// Default: 16.
	MaxIdleConnsPerHost int
}

func (c *ClientConfig) applyDefaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = 16
	}
}

// Client issues provider HTTP calls, optionally routed through an egress
// proxy endpoint. Transports are pooled per proxy so connection reuse
// survives across attempts with the same outbound path.
type Client struct {
	cfg ClientConfig

	mu         sync.Mutex
	transports map[string]*http.Transport // keyed by proxy endpoint ("" = direct)
}

// NewClient creates an upstream client.
func NewClient(cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:        cfg,
		transports: make(map[string]*http.Transport),
	}
}

// AttemptTimeout returns the configured per-attempt timeout.
func (c *Client) AttemptTimeout() time.Duration {
	return c.cfg.AttemptTimeout
}

func (c *Client) transportFor(proxy *egress.Endpoint) *http.Transport {
	key := ""
	if proxy != nil {
		key = proxy.Key()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.transports[key]; ok {
		return t
	}

	t := &http.Transport{
		MaxIdleConnsPerHost:   c.cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: c.cfg.AttemptTimeout,
		ForceAttemptHTTP2:     true,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy.URL())
	}
	c.transports[key] = t
	return t
}

// Do issues one completion call to the provider. The caller owns the
// response body. For streamed attempts the context deadline must be
// managed by the caller; buffered attempts should pass a context already
// bounded by AttemptTimeout.
func (c *Client) Do(ctx context.Context, rec *catalog.ProviderRecord, body []byte, stream bool, header http.Header, proxy *egress.Endpoint) (*http.Response, error) {
	url := completionURL(rec.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if rec.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rec.APIKey)
	}

	client := &http.Client{Transport: c.transportFor(proxy)}
	return client.Do(req)
}

// CloseIdleConnections drops pooled idle connections on every transport.
func (c *Client) CloseIdleConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.transports {
		t.CloseIdleConnections()
	}
}

// completionURL joins the provider base URL with the completions path.
func completionURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}
