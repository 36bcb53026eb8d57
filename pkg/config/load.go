package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Defaults are applied for omitted fields and the result is validated.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// POLARIS_SECTION_FIELD (e.g. POLARIS_SERVER_LISTEN_ADDRESS) and always take
// precedence over file-based configuration.
//
// The loading sequence is:
//  1. Start from defaults
//  2. Unmarshal YAML over them
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.ListenAddress, "POLARIS_SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "POLARIS_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "POLARIS_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "POLARIS_SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "POLARIS_SERVER_SHUTDOWN_TIMEOUT")

	setString(&cfg.Catalog.ProvidersDBPath, "POLARIS_CATALOG_PROVIDERS_DB_PATH")
	setBool(&cfg.Catalog.Watch, "POLARIS_CATALOG_WATCH")

	setString(&cfg.Cache.Backend, "POLARIS_CACHE_BACKEND")
	setString(&cfg.Cache.RedisURL, "POLARIS_CACHE_REDIS_URL")

	setString(&cfg.Metrics.DBPath, "POLARIS_METRICS_DB_PATH")
	setDuration(&cfg.Metrics.WindowSize, "POLARIS_METRICS_WINDOW_SIZE")
	setDuration(&cfg.Metrics.TrailingWindow, "POLARIS_METRICS_TRAILING_WINDOW")
	setInt(&cfg.Metrics.MinSamples, "POLARIS_METRICS_MIN_SAMPLES")
	setFloat(&cfg.Metrics.ErrorRateThreshold, "POLARIS_METRICS_ERROR_RATE_THRESHOLD")
	setDuration(&cfg.Metrics.Retention, "POLARIS_METRICS_RETENTION")
	setString(&cfg.Metrics.PruneSchedule, "POLARIS_METRICS_PRUNE_SCHEDULE")

	setDuration(&cfg.Routing.SessionTTL, "POLARIS_ROUTING_SESSION_TTL")
	setInt(&cfg.Routing.MaxSessions, "POLARIS_ROUTING_MAX_SESSIONS")

	setDuration(&cfg.Upstream.AttemptTimeout, "POLARIS_UPSTREAM_ATTEMPT_TIMEOUT")
	setInt(&cfg.Upstream.MaxIdleConnsPerHost, "POLARIS_UPSTREAM_MAX_IDLE_CONNS_PER_HOST")

	setBool(&cfg.Prober.Enabled, "POLARIS_PROBER_ENABLED")
	setDuration(&cfg.Prober.Interval, "POLARIS_PROBER_INTERVAL")
	setDuration(&cfg.Prober.ProbeTimeout, "POLARIS_PROBER_PROBE_TIMEOUT")
	setInt(&cfg.Prober.DownThreshold, "POLARIS_PROBER_DOWN_THRESHOLD")

	setString(&cfg.Egress.Strategy, "POLARIS_EGRESS_STRATEGY")

	setString(&cfg.Logging.Level, "POLARIS_LOGGING_LEVEL")
	setString(&cfg.Logging.Format, "POLARIS_LOGGING_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
