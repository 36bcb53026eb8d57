package config

import (
	"errors"
	"strings"
	"testing"
)

// invalidate applies one mutation to an otherwise valid configuration.
func invalidate(mutate func(*Config)) *Config {
	cfg := NewDefault()
	mutate(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "listen address without port",
			mutate:    func(c *Config) { c.Server.ListenAddress = "localhost" },
			wantField: "server.listen_address",
		},
		{
			name:      "negative shutdown timeout",
			mutate:    func(c *Config) { c.Server.ShutdownTimeout = -1 },
			wantField: "server.shutdown_timeout",
		},
		{
			name:      "unknown cache backend",
			mutate:    func(c *Config) { c.Cache.Backend = "memcached" },
			wantField: "cache.backend",
		},
		{
			name:      "redis backend without url",
			mutate:    func(c *Config) { c.Cache.Backend = "redis" },
			wantField: "cache.redis_url",
		},
		{
			name:      "zero window size",
			mutate:    func(c *Config) { c.Metrics.WindowSize = 0 },
			wantField: "metrics.window_size",
		},
		{
			name:      "trailing window shorter than one window",
			mutate:    func(c *Config) { c.Metrics.TrailingWindow = c.Metrics.WindowSize / 2 },
			wantField: "metrics.trailing_window",
		},
		{
			name:      "zero min samples",
			mutate:    func(c *Config) { c.Metrics.MinSamples = 0 },
			wantField: "metrics.min_samples",
		},
		{
			name:      "error rate above one",
			mutate:    func(c *Config) { c.Metrics.ErrorRateThreshold = 1.5 },
			wantField: "metrics.error_rate_threshold",
		},
		{
			name:      "invalid prune schedule",
			mutate:    func(c *Config) { c.Metrics.PruneSchedule = "every hour" },
			wantField: "metrics.prune_schedule",
		},
		{
			name:      "zero session ttl",
			mutate:    func(c *Config) { c.Routing.SessionTTL = 0 },
			wantField: "routing.session_ttl",
		},
		{
			name:      "zero max sessions",
			mutate:    func(c *Config) { c.Routing.MaxSessions = 0 },
			wantField: "routing.max_sessions",
		},
		{
			name:      "unknown egress strategy",
			mutate:    func(c *Config) { c.Egress.Strategy = "sticky" },
			wantField: "egress.strategy",
		},
		{
			name: "endpoint without host",
			mutate: func(c *Config) {
				c.Egress.Endpoints = []EndpointConfig{{Scheme: "http", Port: 3128}}
			},
			wantField: "egress.endpoints[0].host",
		},
		{
			name: "endpoint port out of range",
			mutate: func(c *Config) {
				c.Egress.Endpoints = []EndpointConfig{{Scheme: "http", Host: "proxy", Port: 70000}}
			},
			wantField: "egress.endpoints[0].port",
		},
		{
			name: "endpoint with unknown scheme",
			mutate: func(c *Config) {
				c.Egress.Endpoints = []EndpointConfig{{Scheme: "ftp", Host: "proxy", Port: 21}}
			},
			wantField: "egress.endpoints[0].scheme",
		},
		{
			name:      "unknown log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			wantField: "logging.level",
		},
		{
			name:      "unknown log format",
			mutate:    func(c *Config) { c.Logging.Format = "logfmt" },
			wantField: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(invalidate(tt.mutate))
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error is not ValidationError: %v", err)
			}
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					return
				}
			}
			t.Errorf("no error for field %q in %v", tt.wantField, verr.Errors)
		})
	}
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	if err := Validate(NewDefault()); err != nil {
		t.Fatalf("Validate(NewDefault()) error = %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := invalidate(func(c *Config) {
		c.Server.ListenAddress = ""
		c.Logging.Level = "trace"
	})

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error is not ValidationError: %v", err)
	}
	if len(verr.Errors) < 2 {
		t.Fatalf("Errors = %d, want at least 2", len(verr.Errors))
	}
	if !strings.Contains(verr.Error(), "2 errors") {
		t.Errorf("Error() = %q, want aggregate count", verr.Error())
	}
}
