package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"polaris-ai/polaris/internal/catalogtest"
	upstreamtest "polaris-ai/polaris/internal/upstream"
	"polaris-ai/polaris/pkg/cache"
	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
	"polaris-ai/polaris/pkg/upstream"
)

func newTestGateway(t *testing.T, providers ...catalog.ProviderRecord) *Gateway {
	t.Helper()

	providerStore := catalogtest.NewStore(providers...)
	cacheClient := cache.NewMemoryClient()
	cat := catalog.New(providerStore, cacheClient)

	bucketStore, err := metrics.NewSQLiteBucketStore(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBucketStore() error = %v", err)
	}
	t.Cleanup(func() { bucketStore.Close() })

	agg := metrics.NewAggregator(bucketStore, cacheClient, providerStore, nil, metrics.AggregatorConfig{})
	affinity := routing.NewAffinityManager(time.Minute, 64)
	t.Cleanup(affinity.Close)

	selector := routing.NewSelector(cat, agg)
	client := upstream.NewClient(upstream.ClientConfig{AttemptTimeout: 2 * time.Second})
	executor := upstream.NewExecutor(cat, client, nil, agg, affinity, nil)

	return New(cat, selector, affinity, executor, agg)
}

func chatProvider(id, baseURL string) catalog.ProviderRecord {
	return catalog.ProviderRecord{
		ID:        id,
		BaseURL:   baseURL,
		Transport: catalog.TransportHTTP,
		Weight:    1,
		Status:    catalog.StatusHealthy,
		Models: []catalog.ModelMapping{
			{PhysicalID: "phys-" + id, LogicalID: "chat-large"},
		},
	}
}

func TestGateway_ResolveAndExecute(t *testing.T) {
	server := upstreamtest.NewMockServer()
	defer server.Close()
	server.SetResponse("/chat/completions", upstreamtest.MockResponse{StatusCode: 200, Body: `{"id":"cmpl-1"}`})

	gw := newTestGateway(t, chatProvider("provider-a", server.URL()))

	result, err := gw.ResolveAndExecute(context.Background(), CallerContext{UserID: "user-1"}, &ChatRequest{
		LogicalModel: "chat-large",
		Payload:      []byte(`{"model":"chat-large"}`),
	})
	if err != nil {
		t.Fatalf("ResolveAndExecute() error = %v", err)
	}
	if result.Response == nil || string(result.Response.Body) != `{"id":"cmpl-1"}` {
		t.Errorf("result = %+v, want buffered cmpl-1 response", result)
	}
}

func TestGateway_UnknownModel(t *testing.T) {
	gw := newTestGateway(t)

	_, err := gw.ResolveAndExecute(context.Background(), CallerContext{}, &ChatRequest{
		LogicalModel: "no-such-model",
		Payload:      []byte(`{"model":"no-such-model"}`),
	})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("ResolveAndExecute() error = %v, want ErrModelNotFound", err)
	}
}

func TestGateway_InaccessibleModelLooksUnknown(t *testing.T) {
	server := upstreamtest.NewMockServer()
	defer server.Close()
	server.SetResponse("/chat/completions", upstreamtest.MockResponse{StatusCode: 200, Body: "{}"})

	gw := newTestGateway(t, chatProvider("provider-a", server.URL()))

	_, err := gw.ResolveAndExecute(context.Background(), CallerContext{
		AllowedProviders: []string{"some-other-provider"},
	}, &ChatRequest{
		LogicalModel: "chat-large",
		Payload:      []byte(`{"model":"chat-large"}`),
	})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("ResolveAndExecute() error = %v, want ErrModelNotFound", err)
	}
	if server.RequestCount() != 0 {
		t.Errorf("provider saw %d requests, want 0", server.RequestCount())
	}
}

func TestGateway_ExhaustedMapsToUnavailable(t *testing.T) {
	server := upstreamtest.NewMockServer()
	defer server.Close()
	server.SetResponse("/chat/completions", upstreamtest.MockResponse{StatusCode: 500, Body: "boom"})

	gw := newTestGateway(t, chatProvider("provider-a", server.URL()))

	_, err := gw.ResolveAndExecute(context.Background(), CallerContext{}, &ChatRequest{
		LogicalModel: "chat-large",
		Payload:      []byte(`{"model":"chat-large"}`),
	})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("ResolveAndExecute() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestGateway_DropSession(t *testing.T) {
	server := upstreamtest.NewMockServer()
	defer server.Close()
	server.SetResponse("/chat/completions", upstreamtest.MockResponse{StatusCode: 200, Body: "{}"})

	gw := newTestGateway(t, chatProvider("provider-a", server.URL()))

	_, err := gw.ResolveAndExecute(context.Background(), CallerContext{}, &ChatRequest{
		LogicalModel: "chat-large",
		SessionID:    "sess-1",
		Payload:      []byte(`{"model":"chat-large"}`),
	})
	if err != nil {
		t.Fatalf("ResolveAndExecute() error = %v", err)
	}
	if _, ok := gw.affinity.Get("sess-1"); !ok {
		t.Fatal("session was not bound")
	}

	gw.DropSession("sess-1")
	if _, ok := gw.affinity.Get("sess-1"); ok {
		t.Error("session still bound after DropSession")
	}
}
