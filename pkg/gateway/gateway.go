// Package gateway composes the catalog, selector, affinity manager, and
// upstream executor into the request pipeline the HTTP layer calls into.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
	"polaris-ai/polaris/pkg/upstream"
)

// ErrModelNotFound is returned when the logical model does not exist, the
// caller has no access to any of its providers, or no provider is currently
// eligible. Callers cannot distinguish these cases.
var ErrModelNotFound = errors.New("model not found")

// ErrUpstreamUnavailable is returned when every eligible provider was
// attempted and failed.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// CallerContext identifies the authenticated caller for a request.
type CallerContext struct {
	UserID   string
	APIKeyID string

	// AllowedProviders restricts which providers this caller may use.
	// nil or empty means all providers are allowed.
	AllowedProviders []string
}

func (c CallerContext) allowSet() map[string]struct{} {
	if len(c.AllowedProviders) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.AllowedProviders))
	for _, id := range c.AllowedProviders {
		set[id] = struct{}{}
	}
	return set
}

// Gateway is the top-level request pipeline.
type Gateway struct {
	catalog    *catalog.Catalog
	selector   *routing.Selector
	affinity   *routing.AffinityManager
	executor   *upstream.Executor
	aggregator *metrics.Aggregator
	logger     *slog.Logger
}

// New wires the pipeline components together.
func New(cat *catalog.Catalog, sel *routing.Selector, affinity *routing.AffinityManager, exec *upstream.Executor, agg *metrics.Aggregator) *Gateway {
	return &Gateway{
		catalog:    cat,
		selector:   sel,
		affinity:   affinity,
		executor:   exec,
		aggregator: agg,
		logger:     slog.Default().With("component", "gateway"),
	}
}

// ChatRequest is one inbound completion request.
type ChatRequest struct {
	LogicalModel string
	SessionID    string
	Stream       bool
	Payload      []byte
}

// ResolveAndExecute resolves the logical model to an ordered candidate list
// and executes against it with failover. The returned Result holds either a
// buffered response or a live stream.
func (g *Gateway) ResolveAndExecute(ctx context.Context, caller CallerContext, req *ChatRequest) (*upstream.Result, error) {
	var hint *routing.Session
	if req.SessionID != "" {
		if s, ok := g.affinity.Get(req.SessionID); ok {
			hint = s
		}
	}

	candidates, err := g.selector.Select(ctx, req.LogicalModel, caller.allowSet(), hint)
	if err != nil {
		var noCand *routing.NoCandidatesError
		if errors.As(err, &noCand) {
			g.logger.Info("no candidates for request",
				"logical_model", req.LogicalModel,
				"reason", noCand.Reason,
			)
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("selecting candidates: %w", err)
	}

	result, err := g.executor.Execute(ctx, &upstream.Request{
		LogicalModel: req.LogicalModel,
		SessionID:    req.SessionID,
		UserID:       caller.UserID,
		APIKeyID:     caller.APIKeyID,
		Stream:       req.Stream,
		Payload:      req.Payload,
	}, candidates)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		var exhausted *upstream.ExhaustedError
		if errors.As(err, &exhausted) {
			g.logger.Warn("all candidates exhausted",
				"logical_model", req.LogicalModel,
				"attempted", exhausted.Attempted,
			)
			return nil, ErrUpstreamUnavailable
		}
		return nil, err
	}
	return result, nil
}

// ListModels returns the logical models currently in the catalog.
func (g *Gateway) ListModels(ctx context.Context) ([]catalog.LogicalModel, error) {
	return g.catalog.List(ctx)
}

// ProviderHealth holds the current snapshot plus live counters for one
// provider, as served by the admin API.
type ProviderHealth struct {
	ProviderID string                  `json:"provider_id"`
	Status     catalog.ProviderStatus  `json:"status"`
	Snapshot   *metrics.HealthSnapshot `json:"snapshot,omitempty"`
}

// GetProviderHealth reports the health of every configured provider.
func (g *Gateway) GetProviderHealth(ctx context.Context) ([]ProviderHealth, error) {
	records, err := g.catalog.Providers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}

	out := make([]ProviderHealth, 0, len(records))
	for _, rec := range records {
		ph := ProviderHealth{
			ProviderID: rec.ID,
			Status:     g.aggregator.StatusFor(ctx, rec.ID),
		}
		if snap, err := g.aggregator.GetSnapshot(ctx, rec.ID); err == nil {
			ph.Snapshot = snap
		}
		out = append(out, ph)
	}
	return out, nil
}

// GetMetricsHistory returns the persisted per-minute buckets for one
// provider and logical model pair since the given time.
func (g *Gateway) GetMetricsHistory(ctx context.Context, providerID, logicalModel string, since time.Time) ([]metrics.Bucket, error) {
	return g.aggregator.GetBucketedHistory(ctx, providerID, logicalModel, since)
}

// InvalidateCatalog drops the cached catalog and rebuilds it from the store.
func (g *Gateway) InvalidateCatalog(ctx context.Context) error {
	return g.catalog.InvalidateAndRebuild(ctx)
}

// DropSession removes a session binding, forcing fresh selection on the
// next request that carries the session ID.
func (g *Gateway) DropSession(sessionID string) {
	g.affinity.Delete(sessionID)
}
