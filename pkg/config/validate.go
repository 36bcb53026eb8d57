package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g. "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError if
// any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	errs = append(errs, validateRouting(&cfg.Routing)...)
	errs = append(errs, validateEgress(&cfg.Egress)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{"server.listen_address", "must not be empty"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{"server.listen_address", fmt.Sprintf("invalid host:port: %v", err)})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{"server.shutdown_timeout", "must not be negative"})
	}
	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			errs = append(errs, FieldError{"cache.redis_url", "required when backend is redis"})
		}
	default:
		errs = append(errs, FieldError{"cache.backend", fmt.Sprintf("unknown backend %q, must be memory or redis", cfg.Backend)})
	}
	return errs
}

func validateMetrics(cfg *MetricsConfig) []FieldError {
	var errs []FieldError

	if cfg.WindowSize <= 0 {
		errs = append(errs, FieldError{"metrics.window_size", "must be positive"})
	}
	if cfg.TrailingWindow < cfg.WindowSize {
		errs = append(errs, FieldError{"metrics.trailing_window", "must be at least one window"})
	}
	if cfg.MinSamples < 1 {
		errs = append(errs, FieldError{"metrics.min_samples", "must be at least 1"})
	}
	if cfg.ErrorRateThreshold <= 0 || cfg.ErrorRateThreshold > 1 {
		errs = append(errs, FieldError{"metrics.error_rate_threshold", "must be in (0, 1]"})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{"metrics.retention", "must be positive"})
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, FieldError{"metrics.prune_schedule", fmt.Sprintf("invalid cron expression: %v", err)})
	}
	return errs
}

func validateRouting(cfg *RoutingConfig) []FieldError {
	var errs []FieldError

	if cfg.SessionTTL <= 0 {
		errs = append(errs, FieldError{"routing.session_ttl", "must be positive"})
	}
	if cfg.MaxSessions < 1 {
		errs = append(errs, FieldError{"routing.max_sessions", "must be at least 1"})
	}
	return errs
}

func validateEgress(cfg *EgressConfig) []FieldError {
	var errs []FieldError

	switch cfg.Strategy {
	case "random", "round_robin":
	default:
		errs = append(errs, FieldError{"egress.strategy", fmt.Sprintf("unknown strategy %q, must be random or round_robin", cfg.Strategy)})
	}

	for i, ep := range cfg.Endpoints {
		field := fmt.Sprintf("egress.endpoints[%d]", i)
		if ep.Host == "" {
			errs = append(errs, FieldError{field + ".host", "must not be empty"})
		}
		if ep.Port < 1 || ep.Port > 65535 {
			errs = append(errs, FieldError{field + ".port", "must be in 1..65535"})
		}
		switch ep.Scheme {
		case "http", "socks5":
		default:
			errs = append(errs, FieldError{field + ".scheme", fmt.Sprintf("unknown scheme %q, must be http or socks5", ep.Scheme)})
		}
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{"logging.level", fmt.Sprintf("unknown level %q", cfg.Level)})
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{"logging.format", fmt.Sprintf("unknown format %q, must be json or text", cfg.Format)})
	}
	return errs
}
