package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 300 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Catalog defaults
	DefaultProvidersDBPath = "data/providers.db"
	DefaultCatalogWatch    = true

	// Cache defaults
	DefaultCacheBackend = "memory"

	// Metrics defaults
	DefaultMetricsDBPath    = "data/metrics.db"
	DefaultWindowSize       = 60 * time.Second
	DefaultTrailingWindow   = 10 * time.Minute
	DefaultMinSamples       = 20
	DefaultErrorRate        = 0.5
	DefaultMetricsRetention = 72 * time.Hour
	DefaultPruneSchedule    = "0 * * * *"

	// Routing defaults
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 10000

	// Upstream defaults
	DefaultAttemptTimeout      = 60 * time.Second
	DefaultMaxIdleConnsPerHost = 16

	// Prober defaults
	DefaultProberEnabled = true
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultDownThreshold = 3

	// Egress defaults
	DefaultEgressStrategy = "round_robin"

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills in default values for any zero-valued fields.
// Boolean fields that default to true cannot be distinguished from an
// explicit false after unmarshalling, so NewDefault is the recommended
// starting point before unmarshalling user YAML over it.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Catalog.ProvidersDBPath == "" {
		cfg.Catalog.ProvidersDBPath = DefaultProvidersDBPath
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}

	if cfg.Metrics.DBPath == "" {
		cfg.Metrics.DBPath = DefaultMetricsDBPath
	}
	if cfg.Metrics.WindowSize == 0 {
		cfg.Metrics.WindowSize = DefaultWindowSize
	}
	if cfg.Metrics.TrailingWindow == 0 {
		cfg.Metrics.TrailingWindow = DefaultTrailingWindow
	}
	if cfg.Metrics.MinSamples == 0 {
		cfg.Metrics.MinSamples = DefaultMinSamples
	}
	if cfg.Metrics.ErrorRateThreshold == 0 {
		cfg.Metrics.ErrorRateThreshold = DefaultErrorRate
	}
	if cfg.Metrics.Retention == 0 {
		cfg.Metrics.Retention = DefaultMetricsRetention
	}
	if cfg.Metrics.PruneSchedule == "" {
		cfg.Metrics.PruneSchedule = DefaultPruneSchedule
	}

	if cfg.Routing.SessionTTL == 0 {
		cfg.Routing.SessionTTL = DefaultSessionTTL
	}
	if cfg.Routing.MaxSessions == 0 {
		cfg.Routing.MaxSessions = DefaultMaxSessions
	}

	if cfg.Upstream.AttemptTimeout == 0 {
		cfg.Upstream.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	if cfg.Prober.Interval == 0 {
		cfg.Prober.Interval = DefaultProbeInterval
	}
	if cfg.Prober.ProbeTimeout == 0 {
		cfg.Prober.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Prober.DownThreshold == 0 {
		cfg.Prober.DownThreshold = DefaultDownThreshold
	}

	if cfg.Egress.Strategy == "" {
		cfg.Egress.Strategy = DefaultEgressStrategy
	}
	for i := range cfg.Egress.Endpoints {
		if cfg.Egress.Endpoints[i].Scheme == "" {
			cfg.Egress.Endpoints[i].Scheme = "http"
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// NewDefault returns a configuration with every field set to its default.
// User YAML should be unmarshalled over this so that true-by-default
// booleans survive.
func NewDefault() *Config {
	cfg := &Config{
		Catalog: CatalogConfig{Watch: DefaultCatalogWatch},
		Prober:  ProberConfig{Enabled: DefaultProberEnabled},
	}
	ApplyDefaults(cfg)
	return cfg
}
