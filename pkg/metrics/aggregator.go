package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"polaris-ai/polaris/pkg/cache"
	"polaris-ai/polaris/pkg/catalog"
)

// AggregatorConfig tunes bucketing and health classification.
type AggregatorConfig struct {
	// WindowSize is the bucket window. Default: 60s.
	WindowSize time.Duration

	// TrailingWindow is how far back the health classifier looks.
	// Default: 10m.
	TrailingWindow time.Duration

	// MinSamples is the minimum trailing request count before a provider
	// can be classified degraded. Default: 20.
	MinSamples int64

	// ErrorRateThreshold is the trailing error rate at or above which a
	// provider is degraded. Default: 0.5.
	ErrorRateThreshold float64

	// LiveTTL is the sliding expiry on live aggregate hashes. Default: 15m.
	LiveTTL time.Duration
}

func (c *AggregatorConfig) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = time.Minute
	}
	if c.TrailingWindow <= 0 {
		c.TrailingWindow = 10 * time.Minute
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 20
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.5
	}
	if c.LiveTTL <= 0 {
		c.LiveTTL = 15 * time.Minute
	}
}

// Aggregator consumes per-attempt outcomes and serves the derived health
// and metrics views. Safe for unbounded concurrent callers; all bucket
// mutation is delegated to the store's atomic accumulate-upsert.
type Aggregator struct {
	store     BucketStore
	cache     cache.Client
	providers catalog.Store
	collector *Collector
	cfg       AggregatorConfig
	logger    *slog.Logger

	mu         sync.Mutex
	reservoirs map[reservoirKey]*reservoir
}

type reservoirKey struct {
	providerID   string
	logicalModel string
	transport    catalog.Transport
	isStream     bool
	userID       string
	apiKeyID     string
	window       int64
}

// NewAggregator creates the aggregator. collector may be nil when
// Prometheus exposure is disabled.
func NewAggregator(store BucketStore, cacheClient cache.Client, providers catalog.Store, collector *Collector, cfg AggregatorConfig) *Aggregator {
	cfg.applyDefaults()
	return &Aggregator{
		store:      store,
		cache:      cacheClient,
		providers:  providers,
		collector:  collector,
		cfg:        cfg,
		logger:     slog.Default().With("component", "metrics"),
		reservoirs: make(map[reservoirKey]*reservoir),
	}
}

// RecordOutcome records one upstream attempt outcome into every sink.
// All sinks are best-effort: failures are logged and dropped so metrics
// recording never blocks or fails the primary request path.
func (a *Aggregator) RecordOutcome(ctx context.Context, out Outcome) {
	window := time.Now().UTC().Truncate(a.cfg.WindowSize)
	key := BucketKey{
		ProviderID:   out.ProviderID,
		LogicalModel: out.LogicalModel,
		Transport:    out.Transport,
		IsStream:     out.IsStream,
		UserID:       out.UserID,
		APIKeyID:     out.APIKeyID,
		WindowStart:  window,
	}

	p95, p99 := a.observeLatency(key, out)

	if err := a.store.Upsert(ctx, key, out.Kind, out.LatencyMS, p95, p99); err != nil {
		a.logger.Warn("metrics bucket upsert dropped",
			"provider", out.ProviderID,
			"logical_model", out.LogicalModel,
			"error", err,
		)
	}

	a.updateLive(ctx, out)

	if a.collector != nil {
		a.collector.RecordOutcome(out.ProviderID, out.LogicalModel, out.Kind,
			time.Duration(out.LatencyMS)*time.Millisecond)
	}
}

// observeLatency feeds the per-bucket reservoir and returns the refreshed
// p95/p99 approximations. Cancelled attempts carry no meaningful upstream
// latency and are excluded from the sample.
func (a *Aggregator) observeLatency(key BucketKey, out Outcome) (float64, float64) {
	rkey := reservoirKey{
		providerID:   key.ProviderID,
		logicalModel: key.LogicalModel,
		transport:    key.Transport,
		isStream:     key.IsStream,
		userID:       key.UserID,
		apiKeyID:     key.APIKeyID,
		window:       key.WindowStart.Unix(),
	}

	a.mu.Lock()
	res, ok := a.reservoirs[rkey]
	if !ok {
		res = newReservoir(defaultReservoirSize)
		a.reservoirs[rkey] = res
		a.dropStaleReservoirs(rkey.window)
	}
	a.mu.Unlock()

	if out.Kind != OutcomeCancelled {
		res.observe(float64(out.LatencyMS))
	}
	return res.quantiles()
}

// dropStaleReservoirs evicts reservoirs more than two windows old.
// Must be called with the mutex held.
func (a *Aggregator) dropStaleReservoirs(currentWindow int64) {
	cutoff := currentWindow - 2*int64(a.cfg.WindowSize/time.Second)
	for key := range a.reservoirs {
		if key.window < cutoff {
			delete(a.reservoirs, key)
		}
	}
}

// updateLive accumulates the outcome into the ephemeral per-(model,
// provider) hash read by the selector.
func (a *Aggregator) updateLive(ctx context.Context, out Outcome) {
	key := cache.LiveMetricsKey(out.LogicalModel, out.ProviderID)

	var field string
	switch out.Kind {
	case OutcomeSuccess:
		field = "success"
	case OutcomeError:
		field = "error"
	case OutcomeCancelled:
		field = "cancelled"
	}

	if _, err := a.cache.IncrField(ctx, key, field, 1); err != nil {
		a.logger.Warn("live metrics update dropped", "key", key, "error", err)
		return
	}
	if out.Kind != OutcomeCancelled {
		if _, err := a.cache.IncrField(ctx, key, "latency_ms_total", out.LatencyMS); err != nil {
			a.logger.Warn("live metrics update dropped", "key", key, "error", err)
		}
	}
	if err := a.cache.Expire(ctx, key, a.cfg.LiveTTL); err != nil {
		a.logger.Debug("live metrics expire failed", "key", key, "error", err)
	}
}

// Live returns the current ephemeral aggregates for one (logical model,
// provider) pair. A missing hash yields zero stats, not an error.
func (a *Aggregator) Live(ctx context.Context, logicalModel, providerID string) (LiveStats, error) {
	fields, err := a.cache.GetFields(ctx, cache.LiveMetricsKey(logicalModel, providerID))
	if err != nil {
		return LiveStats{}, err
	}

	var stats LiveStats
	stats.SuccessRequests = parseField(fields, "success")
	stats.ErrorRequests = parseField(fields, "error")
	stats.TotalRequests = stats.SuccessRequests + stats.ErrorRequests
	if latencySum := parseField(fields, "latency_ms_total"); stats.TotalRequests > 0 {
		stats.AvgLatencyMS = float64(latencySum) / float64(stats.TotalRequests)
	}
	return stats, nil
}

func parseField(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// GetBucketedHistory returns the durable buckets for (providerID,
// logicalModel) since the given time, with each bucket's derived status.
func (a *Aggregator) GetBucketedHistory(ctx context.Context, providerID, logicalModel string, since time.Time) ([]Bucket, error) {
	buckets, err := a.store.History(ctx, providerID, logicalModel, since)
	if err != nil {
		return nil, err
	}
	for i := range buckets {
		if buckets[i].TotalRequests >= a.cfg.MinSamples && buckets[i].ErrorRate >= a.cfg.ErrorRateThreshold {
			buckets[i].Status = catalog.StatusDegraded
		} else {
			buckets[i].Status = catalog.StatusHealthy
		}
	}
	return buckets, nil
}

// GetSnapshot returns the provider's current health snapshot.
//
// When no probe has ever completed, the snapshot falls back to the
// provider's configured status and check timestamp. A snapshot is absent
// only for providers missing from the configuration store entirely.
func (a *Aggregator) GetSnapshot(ctx context.Context, providerID string) (*HealthSnapshot, error) {
	raw, ok, err := a.cache.Get(ctx, cache.HealthSnapshotKey(providerID))
	if err == nil && ok {
		var snap HealthSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err == nil {
			return &snap, nil
		}
		a.logger.Warn("corrupt health snapshot", "provider", providerID)
	}

	rec, found, err := a.providers.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider record: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("provider %q not found", providerID)
	}

	return &HealthSnapshot{
		ProviderID: providerID,
		Status:     rec.Status,
		Timestamp:  rec.LastCheck,
	}, nil
}

// SetProbeResult publishes a health probe outcome as the provider's
// current snapshot.
func (a *Aggregator) SetProbeResult(ctx context.Context, providerID string, status catalog.ProviderStatus, responseTime time.Duration, probeErr error) {
	snap := HealthSnapshot{
		ProviderID:     providerID,
		Status:         status,
		Timestamp:      time.Now().UTC(),
		ResponseTimeMS: responseTime.Milliseconds(),
	}
	if probeErr != nil {
		snap.ErrorMessage = probeErr.Error()
	}
	if status != catalog.StatusDown {
		snap.LastSuccessfulCheck = snap.Timestamp
	} else if prev, err := a.GetSnapshot(ctx, providerID); err == nil {
		snap.LastSuccessfulCheck = prev.LastSuccessfulCheck
	}

	a.writeSnapshot(ctx, &snap)

	if a.collector != nil {
		a.collector.UpdateHealth(providerID, string(status))
	}
}

// MarkDown forces a provider down, as from an admin action.
func (a *Aggregator) MarkDown(ctx context.Context, providerID, reason string) {
	snap := HealthSnapshot{
		ProviderID:   providerID,
		Status:       catalog.StatusDown,
		Timestamp:    time.Now().UTC(),
		ErrorMessage: reason,
	}
	if prev, err := a.GetSnapshot(ctx, providerID); err == nil {
		snap.LastSuccessfulCheck = prev.LastSuccessfulCheck
	}
	a.writeSnapshot(ctx, &snap)

	if a.collector != nil {
		a.collector.UpdateHealth(providerID, string(catalog.StatusDown))
	}
}

func (a *Aggregator) writeSnapshot(ctx context.Context, snap *HealthSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		a.logger.Error("failed to encode health snapshot", "provider", snap.ProviderID, "error", err)
		return
	}
	if err := a.cache.Set(ctx, cache.HealthSnapshotKey(snap.ProviderID), string(data), 0); err != nil {
		a.logger.Warn("health snapshot write dropped", "provider", snap.ProviderID, "error", err)
	}
}

// StatusFor returns the provider's routing classification.
//
// An explicit down snapshot (probe or admin) wins outright; otherwise the
// provider is degraded when its trailing error rate crosses the threshold
// with enough samples, else healthy. Classification errors degrade to
// healthy so a metrics outage never blocks routing.
func (a *Aggregator) StatusFor(ctx context.Context, providerID string) catalog.ProviderStatus {
	if snap, err := a.GetSnapshot(ctx, providerID); err == nil && snap.Status == catalog.StatusDown {
		return catalog.StatusDown
	}

	since := time.Now().UTC().Add(-a.cfg.TrailingWindow)
	total, errored, err := a.store.TrailingCounts(ctx, providerID, since)
	if err != nil {
		a.logger.Warn("health classification fell back to healthy", "provider", providerID, "error", err)
		return catalog.StatusHealthy
	}

	if total >= a.cfg.MinSamples && float64(errored)/float64(total) >= a.cfg.ErrorRateThreshold {
		return catalog.StatusDegraded
	}
	return catalog.StatusHealthy
}
