package routing

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/metrics"
)

// HealthSource supplies the selector's routing signals: the provider's
// current classification and the live error/latency aggregates for one
// (logical model, provider) pair.
type HealthSource interface {
	StatusFor(ctx context.Context, providerID string) catalog.ProviderStatus
	Live(ctx context.Context, logicalModel, providerID string) (metrics.LiveStats, error)
}

// ModelResolver resolves a logical model to its upstream candidates.
type ModelResolver interface {
	Get(ctx context.Context, logicalID string) (*catalog.LogicalModel, error)
}

// Selector produces the ordered candidate list (the failover sequence)
// for one request, combining catalog membership, the caller's allow-set,
// session affinity, and live health signals.
//
// Selection is deterministic for identical inputs: candidates with equal
// scores are ordered lexicographically by provider ID.
type Selector struct {
	catalog ModelResolver
	health  HealthSource
	logger  *slog.Logger
}

// NewSelector creates a selector over the given catalog and health source.
func NewSelector(cat ModelResolver, health HealthSource) *Selector {
	return &Selector{
		catalog: cat,
		health:  health,
		logger:  slog.Default().With("component", "selector"),
	}
}

// scored pairs a candidate with its ranking signals.
type scored struct {
	candidate Candidate
	status    catalog.ProviderStatus
	score     float64
}

// Select ranks the accessible upstreams of logicalModelID.
//
// Ordering rules:
//  1. Upstreams whose provider is not in accessible are removed. A nil
//     accessible set means the caller is unrestricted. An empty result is
//     indistinguishable from an unknown model (ErrNoCandidates); callers
//     never learn that inaccessible providers exist.
//  2. A session hint naming a still-eligible, not-down provider is placed
//     first: stickiness outranks scoring but never overrides exclusion.
//  3. The remainder is ranked by weight × (1 − error_rate) /
//     (1 + latency_ms/1000), healthy before degraded; down providers are
//     excluded outright.
func (s *Selector) Select(ctx context.Context, logicalModelID string, accessible map[string]struct{}, hint *Session) ([]Candidate, error) {
	model, err := s.catalog.Get(ctx, logicalModelID)
	if err != nil {
		if errors.Is(err, catalog.ErrModelNotFound) || errors.Is(err, catalog.ErrStoreUnavailable) {
			return nil, &NoCandidatesError{LogicalModel: logicalModelID, Reason: "model unknown"}
		}
		return nil, err
	}

	eligible := make([]catalog.Upstream, 0, len(model.Upstreams))
	for _, up := range model.Upstreams {
		if accessible != nil {
			if _, ok := accessible[up.ProviderID]; !ok {
				continue
			}
		}
		eligible = append(eligible, up)
	}
	if len(eligible) == 0 {
		// Deliberately identical to "model unknown" from the caller's
		// point of view.
		return nil, &NoCandidatesError{LogicalModel: logicalModelID, Reason: "no accessible provider"}
	}

	var (
		sticky  *Candidate
		ranked  []scored
		dropped int
	)
	for _, up := range eligible {
		status := s.health.StatusFor(ctx, up.ProviderID)
		if status == catalog.StatusDown {
			dropped++
			continue
		}

		cand := Candidate{
			ProviderID:      up.ProviderID,
			PhysicalModelID: up.PhysicalModelID,
			Transport:       up.Transport,
		}

		if hint != nil && sticky == nil && hint.ProviderID == up.ProviderID {
			sticky = &cand
			continue
		}

		ranked = append(ranked, scored{
			candidate: cand,
			status:    status,
			score:     s.score(ctx, logicalModelID, up),
		})
	}

	if sticky == nil && len(ranked) == 0 {
		return nil, &NoCandidatesError{LogicalModel: logicalModelID, Reason: "all providers down"}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		// Healthy candidates always outrank degraded fallbacks.
		if ranked[i].status != ranked[j].status {
			return ranked[i].status == catalog.StatusHealthy
		}
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].candidate.ProviderID < ranked[j].candidate.ProviderID
	})

	out := make([]Candidate, 0, len(ranked)+1)
	if sticky != nil {
		out = append(out, *sticky)
	}
	for _, r := range ranked {
		out = append(out, r.candidate)
	}

	s.logger.Debug("candidates selected",
		"logical_model", logicalModelID,
		"candidates", len(out),
		"down_excluded", dropped,
		"sticky", sticky != nil,
	)
	return out, nil
}

// score computes the weighted composite routing score. Any monotonic
// composite works here: lower error rate and latency raise the score,
// higher configured weight raises it. Live stats failures score the
// upstream on weight alone.
func (s *Selector) score(ctx context.Context, logicalModelID string, up catalog.Upstream) float64 {
	weight := up.Weight
	if weight <= 0 {
		weight = 1.0
	}

	live, err := s.health.Live(ctx, logicalModelID, up.ProviderID)
	if err != nil {
		s.logger.Debug("live stats unavailable, scoring on weight only",
			"provider", up.ProviderID, "error", err)
		return weight
	}

	normalizedLatency := live.AvgLatencyMS / 1000.0
	return weight * (1.0 - live.ErrorRate()) / (1.0 + normalizedLatency)
}
