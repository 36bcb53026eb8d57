package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig configures scheduled bucket retention.
type PrunerConfig struct {
	// Schedule is a standard cron expression (e.g. "0 * * * *" for
	// hourly). Empty disables scheduled pruning.
	Schedule string

	// Retention is the minute-bucket history horizon. Buckets older than
	// this are rolled up and deleted. Default: 72h.
	Retention time.Duration
}

// Pruner runs scheduled retention over the bucket store: minute buckets
// past the horizon are rolled up into hourly aggregates and removed.
type Pruner struct {
	store  BucketStore
	cfg    PrunerConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewPruner creates a pruner over the given store.
func NewPruner(store BucketStore, cfg PrunerConfig) *Pruner {
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	return &Pruner{
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
		logger: slog.Default().With("component", "metrics.pruner"),
	}
}

// Start begins scheduled pruning. A no-op when no schedule is configured.
// The scheduler stops when the context is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Schedule == "" {
		p.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}
	if p.running {
		return fmt.Errorf("pruner already running")
	}

	if _, err := cron.ParseStandard(p.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.cfg.Schedule, err)
	}

	if _, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		p.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("metrics pruner started",
		"schedule", p.cfg.Schedule,
		"retention", p.cfg.Retention,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	return nil
}

// Stop halts the scheduler. Safe to call multiple times.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cron.Stop()
	p.running = false
	p.logger.Info("metrics pruner stopped")
}

// runOnce executes one prune cycle.
func (p *Pruner) runOnce(ctx context.Context) {
	horizon := time.Now().UTC().Add(-p.cfg.Retention)

	deleted, err := p.store.Prune(ctx, horizon)
	if err != nil {
		p.logger.Error("scheduled metrics pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("scheduled metrics pruning completed",
			"deleted_buckets", deleted,
			"horizon", horizon,
		)
	}
}
