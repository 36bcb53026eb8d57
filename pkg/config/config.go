package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the gateway. It contains
// all configuration sections for the HTTP server, catalog, cache, metrics,
// routing, upstream execution, egress proxies, and logging.
type Config struct {
	// Server contains HTTP server configuration including listen address
	// and timeouts.
	Server ServerConfig `yaml:"server"`

	// Catalog contains configuration for the provider store backing the
	// logical model catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Cache contains configuration for the shared cache used by the
	// catalog and the health aggregator.
	Cache CacheConfig `yaml:"cache"`

	// Metrics contains configuration for outcome aggregation, persisted
	// bucket storage, and retention.
	Metrics MetricsConfig `yaml:"metrics"`

	// Routing contains configuration for session affinity.
	Routing RoutingConfig `yaml:"routing"`

	// Upstream contains configuration for provider request execution.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Prober contains configuration for background provider health probes.
	Prober ProberConfig `yaml:"prober"`

	// Egress contains the outbound proxy pool configuration.
	Egress EgressConfig `yaml:"egress"`

	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port". Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses require this to be generous. Default: 300s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size. Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// CatalogConfig contains configuration for the provider store.
type CatalogConfig struct {
	// ProvidersDBPath is the SQLite database holding provider and model
	// mapping records. Default: "data/providers.db"
	ProvidersDBPath string `yaml:"providers_db_path"`

	// Watch enables filesystem watching of the provider database. When the
	// file changes the cached catalog is invalidated and rebuilt.
	// Default: true
	Watch bool `yaml:"watch"`
}

// CacheConfig selects and configures the shared cache backend.
type CacheConfig struct {
	// Backend is either "memory" or "redis". Default: "memory"
	Backend string `yaml:"backend"`

	// RedisURL is the connection URL when Backend is "redis".
	// Format: "redis://[user:pass@]host:port/db"
	RedisURL string `yaml:"redis_url"`
}

// MetricsConfig contains configuration for the health and metrics aggregator.
type MetricsConfig struct {
	// DBPath is the SQLite database holding persisted metric buckets.
	// Default: "data/metrics.db"
	DBPath string `yaml:"db_path"`

	// WindowSize is the bucketing window for persisted metrics.
	// Default: 60s
	WindowSize time.Duration `yaml:"window_size"`

	// TrailingWindow is the lookback used for degraded classification.
	// Default: 10m
	TrailingWindow time.Duration `yaml:"trailing_window"`

	// MinSamples is the minimum request count in the trailing window
	// before error rate is considered meaningful. Default: 20
	MinSamples int `yaml:"min_samples"`

	// ErrorRateThreshold is the trailing error rate at or above which a
	// provider is classified degraded. Default: 0.5
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// Retention is how long raw per-window buckets are kept before being
	// rolled up and pruned. Default: 72h
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron expression for the retention job.
	// Default: "0 * * * *" (hourly)
	PruneSchedule string `yaml:"prune_schedule"`
}

// RoutingConfig contains configuration for session affinity.
type RoutingConfig struct {
	// SessionTTL is the sliding idle expiry for session bindings.
	// Default: 30m
	SessionTTL time.Duration `yaml:"session_ttl"`

	// MaxSessions caps the number of concurrently tracked sessions.
	// The least recently used binding is evicted at the cap.
	// Default: 10000
	MaxSessions int `yaml:"max_sessions"`
}

// UpstreamConfig contains configuration for provider request execution.
type UpstreamConfig struct {
	// AttemptTimeout bounds one buffered provider attempt end-to-end, and
	// the time to the first chunk for streaming attempts. Default: 60s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`

	// MaxIdleConnsPerHost sizes the per-provider connection pool.
	// Default: 16
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`
}

// ProberConfig contains configuration for background health probes.
type ProberConfig struct {
	// Enabled turns the background prober on. Default: true
	Enabled bool `yaml:"enabled"`

	// Interval between probe cycles. Default: 30s
	Interval time.Duration `yaml:"interval"`

	// ProbeTimeout bounds one provider probe. Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// DownThreshold is the number of consecutive probe failures before a
	// provider is marked down. Default: 3
	DownThreshold int `yaml:"down_threshold"`
}

// EgressConfig contains the outbound proxy pool configuration.
type EgressConfig struct {
	// Strategy is the proxy selection strategy, "random" or "round_robin".
	// Default: "round_robin"
	Strategy string `yaml:"strategy"`

	// Endpoints is the set of egress proxies. An empty list means direct
	// connections.
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig describes one egress proxy endpoint.
type EndpointConfig struct {
	// Scheme is "http" or "socks5". Default: "http"
	Scheme string `yaml:"scheme"`

	// Host is the proxy hostname or IP.
	Host string `yaml:"host"`

	// Port is the proxy port.
	Port int `yaml:"port"`

	// Username and Password are optional proxy credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Enabled marks the endpoint usable. Default: true
	Enabled bool `yaml:"enabled"`
}

// UnmarshalYAML decodes an endpoint with its true-by-default fields
// pre-set, so a listed endpoint is enabled unless explicitly disabled.
func (e *EndpointConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawEndpoint EndpointConfig
	raw := rawEndpoint{Scheme: "http", Enabled: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = EndpointConfig(raw)
	return nil
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`
}
