package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/metrics"
)

// ProberConfig tunes the background health prober.
type ProberConfig struct {
	// Interval between probe cycles. Default: 30s.
	Interval time.Duration

	// ProbeTimeout bounds one provider probe. Default: 5s.
	ProbeTimeout time.Duration

	// DownThreshold is the number of consecutive probe failures before a
	// provider is marked down. Default: 3.
	DownThreshold int
}

func (c *ProberConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.DownThreshold <= 0 {
		c.DownThreshold = 3
	}
}

// Prober periodically issues lightweight requests against each configured
// provider and publishes the results as health snapshots. A provider is
// marked down only after DownThreshold consecutive failures and recovers
// on the first successful probe.
type Prober struct {
	store      catalog.Store
	aggregator *metrics.Aggregator
	cfg        ProberConfig
	client     *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewProber creates a prober over the configured providers.
func NewProber(store catalog.Store, aggregator *metrics.Aggregator, cfg ProberConfig) *Prober {
	cfg.applyDefaults()
	return &Prober{
		store:      store,
		aggregator: aggregator,
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.ProbeTimeout},
		logger:     slog.Default().With("component", "prober"),
		failures:   make(map[string]int),
	}
}

// Run probes all providers on the configured interval until the context
// is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("health prober started", "interval", p.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("health prober stopped")
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	records, err := p.store.ListProviders(ctx)
	if err != nil {
		p.logger.Error("probe cycle skipped, provider store unavailable", "error", err)
		return
	}

	for _, rec := range records {
		p.probeOne(ctx, rec)
	}
}

func (p *Prober) probeOne(ctx context.Context, rec catalog.ProviderRecord) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := p.check(probeCtx, rec)
	latency := time.Since(start)

	p.mu.Lock()
	if err != nil {
		p.failures[rec.ID]++
	} else {
		if p.failures[rec.ID] > 0 {
			p.logger.Info("provider recovered", "provider", rec.ID, "previous_failures", p.failures[rec.ID])
		}
		p.failures[rec.ID] = 0
	}
	consecutive := p.failures[rec.ID]
	p.mu.Unlock()

	switch {
	case err == nil:
		p.aggregator.SetProbeResult(ctx, rec.ID, catalog.StatusHealthy, latency, nil)

	case consecutive >= p.cfg.DownThreshold:
		p.logger.Warn("provider marked down",
			"provider", rec.ID,
			"consecutive_failures", consecutive,
			"error", err,
		)
		p.aggregator.SetProbeResult(ctx, rec.ID, catalog.StatusDown, latency, err)

	default:
		p.logger.Debug("probe failed, below down threshold",
			"provider", rec.ID,
			"consecutive_failures", consecutive,
			"error", err,
		)
	}
}

// check issues the lightweight probe request.
func (p *Prober) check(ctx context.Context, rec catalog.ProviderRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.BaseURL, nil)
	if err != nil {
		return err
	}
	if rec.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rec.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
