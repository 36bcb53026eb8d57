package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"polaris-ai/polaris/pkg/cache"
	"polaris-ai/polaris/pkg/catalog"
	"polaris-ai/polaris/pkg/config"
	"polaris-ai/polaris/pkg/egress"
	"polaris-ai/polaris/pkg/gateway"
	"polaris-ai/polaris/pkg/metrics"
	"polaris-ai/polaris/pkg/routing"
	"polaris-ai/polaris/pkg/server"
	"polaris-ai/polaris/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Polaris gateway",
	Long: `Start the Polaris gateway with the specified configuration.

The gateway listens on the configured address, resolves logical models to
physical providers, and proxies completion requests with health-aware
failover.

Examples:
  # Start with default config
  polaris run

  # Start with custom config
  polaris run --config /etc/polaris/config.yaml

  # Override listen address
  polaris run --listen 0.0.0.0:8080`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	// Optional .env for local development; environment wins over file.
	_ = godotenv.Load()

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	setupLogging(&cfg.Logging)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Shared cache for catalog entries, health snapshots, and live stats.
	cacheClient, err := newCacheClient(ctx, &cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache client: %w", err)
	}
	defer cacheClient.Close()

	slog.Info("opening provider store", "path", cfg.Catalog.ProvidersDBPath)
	store, err := catalog.NewSQLiteStore(cfg.Catalog.ProvidersDBPath)
	if err != nil {
		return fmt.Errorf("failed to open provider store: %w", err)
	}
	defer store.Close()

	cat := catalog.New(store, cacheClient)

	bucketStore, err := metrics.NewSQLiteBucketStore(cfg.Metrics.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer bucketStore.Close()

	collector := metrics.NewCollector(metrics.CollectorConfig{}, nil)
	cat.SetRebuildObserver(collector)

	aggregator := metrics.NewAggregator(bucketStore, cacheClient, store, collector, metrics.AggregatorConfig{
		WindowSize:         cfg.Metrics.WindowSize,
		TrailingWindow:     cfg.Metrics.TrailingWindow,
		MinSamples:         int64(cfg.Metrics.MinSamples),
		ErrorRateThreshold: cfg.Metrics.ErrorRateThreshold,
	})

	pruner := metrics.NewPruner(bucketStore, metrics.PrunerConfig{
		Schedule:  cfg.Metrics.PruneSchedule,
		Retention: cfg.Metrics.Retention,
	})
	if err := pruner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics pruner: %w", err)
	}
	defer pruner.Stop()

	affinity := routing.NewAffinityManager(cfg.Routing.SessionTTL, cfg.Routing.MaxSessions)
	defer affinity.Close()

	selector := routing.NewSelector(cat, aggregator)

	pool, err := egress.NewPool(egress.Strategy(cfg.Egress.Strategy), egressEndpoints(cfg.Egress.Endpoints))
	if err != nil {
		return fmt.Errorf("failed to create egress pool: %w", err)
	}

	client := upstream.NewClient(upstream.ClientConfig{
		AttemptTimeout:      cfg.Upstream.AttemptTimeout,
		MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnsPerHost,
	})
	executor := upstream.NewExecutor(cat, client, pool, aggregator, affinity, collector)

	gw := gateway.New(cat, selector, affinity, executor, aggregator)

	if cfg.Catalog.Watch {
		watcher := catalog.NewStoreWatcher(cfg.Catalog.ProvidersDBPath, cat, 0)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("provider store watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Prober.Enabled {
		prober := upstream.NewProber(store, aggregator, upstream.ProberConfig{
			Interval:      cfg.Prober.Interval,
			ProbeTimeout:  cfg.Prober.ProbeTimeout,
			DownThreshold: cfg.Prober.DownThreshold,
		})
		go prober.Run(ctx)
	}

	srv := server.NewServer(&cfg.Server, gw, collector)
	return srv.Start(ctx)
}

func setupLogging(cfg *config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newCacheClient(ctx context.Context, cfg *config.CacheConfig) (cache.Client, error) {
	if cfg.Backend == "redis" {
		slog.Info("connecting to redis cache")
		return cache.NewRedisClient(ctx, cfg.RedisURL)
	}
	return cache.NewMemoryClient(), nil
}

func egressEndpoints(cfgs []config.EndpointConfig) []egress.Endpoint {
	endpoints := make([]egress.Endpoint, 0, len(cfgs))
	for _, ec := range cfgs {
		endpoints = append(endpoints, egress.Endpoint{
			Scheme:   ec.Scheme,
			Host:     ec.Host,
			Port:     ec.Port,
			Username: ec.Username,
			Password: ec.Password,
			Enabled:  ec.Enabled,
		})
	}
	return endpoints
}
