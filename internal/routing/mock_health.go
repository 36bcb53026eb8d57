// Package routing provides test doubles for candidate selection.
package routing

import (
	"context"
	"errors"
	"sync"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/metrics"
)

// MockHealth is a configurable health source for selector tests. Providers
// without an explicit status report healthy, matching the aggregator's
// fallback behavior.
type MockHealth struct {
	mu       sync.Mutex
	statuses map[string]catalog.ProviderStatus
	stats    map[string]metrics.LiveStats
	liveErr  error
}

// NewMockHealth creates a health source where every provider is healthy.
func NewMockHealth() *MockHealth {
	return &MockHealth{
		statuses: make(map[string]catalog.ProviderStatus),
		stats:    make(map[string]metrics.LiveStats),
	}
}

// SetStatus sets the classification for one provider.
func (m *MockHealth) SetStatus(providerID string, status catalog.ProviderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[providerID] = status
}

// SetStats sets the live aggregate counters for a provider and model pair.
func (m *MockHealth) SetStats(providerID string, stats metrics.LiveStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[providerID] = stats
}

// FailLive makes Live return the given error, simulating an unavailable
// cache backend.
func (m *MockHealth) FailLive(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveErr = err
}

// StatusFor implements the selector's health source.
func (m *MockHealth) StatusFor(ctx context.Context, providerID string) catalog.ProviderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.statuses[providerID]; ok {
		return status
	}
	return catalog.StatusHealthy
}

// Live implements the selector's health source.
func (m *MockHealth) Live(ctx context.Context, logicalModel, providerID string) (metrics.LiveStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveErr != nil {
		return metrics.LiveStats{}, m.liveErr
	}
	if stats, ok := m.stats[providerID]; ok {
		return stats, nil
	}
	return metrics.LiveStats{}, errors.New("no live stats")
}
