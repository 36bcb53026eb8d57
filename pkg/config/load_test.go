package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, "{}"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", cfg.Server.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Metrics.WindowSize != DefaultWindowSize {
		t.Errorf("Metrics.WindowSize = %v, want %v", cfg.Metrics.WindowSize, DefaultWindowSize)
	}
	if cfg.Metrics.PruneSchedule != DefaultPruneSchedule {
		t.Errorf("Metrics.PruneSchedule = %q, want %q", cfg.Metrics.PruneSchedule, DefaultPruneSchedule)
	}
	if cfg.Routing.SessionTTL != DefaultSessionTTL {
		t.Errorf("Routing.SessionTTL = %v, want %v", cfg.Routing.SessionTTL, DefaultSessionTTL)
	}
	if !cfg.Catalog.Watch {
		t.Error("Catalog.Watch = false, want true by default")
	}
	if !cfg.Prober.Enabled {
		t.Error("Prober.Enabled = false, want true by default")
	}
	if cfg.Egress.Strategy != "round_robin" {
		t.Errorf("Egress.Strategy = %q, want round_robin", cfg.Egress.Strategy)
	}
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9090"
  write_timeout: 10m
catalog:
  providers_db_path: /var/lib/polaris/providers.db
  watch: false
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
metrics:
  min_samples: 5
  error_rate_threshold: 0.25
routing:
  session_ttl: 5m
prober:
  enabled: false
egress:
  strategy: random
  endpoints:
    - host: proxy1.internal
      port: 3128
      enabled: true
logging:
  level: debug
  format: text
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q, want 0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.WriteTimeout != 10*time.Minute {
		t.Errorf("WriteTimeout = %v, want 10m", cfg.Server.WriteTimeout)
	}
	if cfg.Catalog.Watch {
		t.Error("Catalog.Watch = true, want explicit false to survive")
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Cache = %+v, want redis backend with URL", cfg.Cache)
	}
	if cfg.Metrics.MinSamples != 5 {
		t.Errorf("MinSamples = %d, want 5", cfg.Metrics.MinSamples)
	}
	if cfg.Metrics.ErrorRateThreshold != 0.25 {
		t.Errorf("ErrorRateThreshold = %v, want 0.25", cfg.Metrics.ErrorRateThreshold)
	}
	if cfg.Routing.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v, want 5m", cfg.Routing.SessionTTL)
	}
	if cfg.Prober.Enabled {
		t.Error("Prober.Enabled = true, want explicit false to survive")
	}
	if len(cfg.Egress.Endpoints) != 1 {
		t.Fatalf("Egress.Endpoints = %d entries, want 1", len(cfg.Egress.Endpoints))
	}
	if cfg.Egress.Endpoints[0].Scheme != "http" {
		t.Errorf("endpoint scheme = %q, want http default", cfg.Egress.Endpoints[0].Scheme)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestLoadConfig_EndpointEnabledDefaultsTrue(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, `
egress:
  endpoints:
    - host: proxy1.internal
      port: 3128
    - host: proxy2.internal
      port: 3128
      enabled: false
`))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if len(cfg.Egress.Endpoints) != 2 {
		t.Fatalf("Egress.Endpoints = %d entries, want 2", len(cfg.Egress.Endpoints))
	}
	if !cfg.Egress.Endpoints[0].Enabled {
		t.Error("endpoint without enabled key loaded disabled, want true by default")
	}
	if cfg.Egress.Endpoints[0].Scheme != "http" {
		t.Errorf("endpoint scheme = %q, want http default", cfg.Egress.Endpoints[0].Scheme)
	}
	if cfg.Egress.Endpoints[1].Enabled {
		t.Error("explicit enabled: false did not survive")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig() with missing file: expected error")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "server: [not a mapping")); err == nil {
		t.Fatal("LoadConfig() with invalid YAML: expected error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("POLARIS_SERVER_LISTEN_ADDRESS", "0.0.0.0:7070")
	t.Setenv("POLARIS_CACHE_BACKEND", "redis")
	t.Setenv("POLARIS_CACHE_REDIS_URL", "redis://cache.internal:6379/1")
	t.Setenv("POLARIS_METRICS_MIN_SAMPLES", "50")
	t.Setenv("POLARIS_ROUTING_SESSION_TTL", "90s")
	t.Setenv("POLARIS_PROBER_ENABLED", "false")
	t.Setenv("POLARIS_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8080"
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("ListenAddress = %q, want env override 0.0.0.0:7070", cfg.Server.ListenAddress)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisURL != "redis://cache.internal:6379/1" {
		t.Errorf("Cache = %+v, want redis from env", cfg.Cache)
	}
	if cfg.Metrics.MinSamples != 50 {
		t.Errorf("MinSamples = %d, want 50", cfg.Metrics.MinSamples)
	}
	if cfg.Routing.SessionTTL != 90*time.Second {
		t.Errorf("SessionTTL = %v, want 90s", cfg.Routing.SessionTTL)
	}
	if cfg.Prober.Enabled {
		t.Error("Prober.Enabled = true, want env override false")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want env override warn", cfg.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	t.Setenv("POLARIS_CACHE_BACKEND", "memcached")

	if _, err := LoadConfigWithEnvOverrides(writeConfigFile(t, "{}")); err == nil {
		t.Fatal("expected validation failure for unknown cache backend")
	}
}
