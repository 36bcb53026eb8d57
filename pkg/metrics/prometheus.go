package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus instruments exposed on /metrics. It is a
// thin companion to the durable bucket store: buckets drive routing, the
// Prometheus view drives dashboards and alerting.
type Collector struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	providerHealth   *prometheus.GaugeVec
	failovers        *prometheus.CounterVec
	catalogRebuilds  prometheus.Counter
}

// CollectorConfig configures metric naming.
type CollectorConfig struct {
	// Namespace is the metric name prefix. Default: "polaris".
	Namespace string

	// LatencyBuckets are histogram boundaries in seconds, tuned for LLM
	// upstream latencies when unset.
	LatencyBuckets []float64
}

// NewCollector creates a collector and registers its instruments on the
// given registry (a fresh registry when nil).
func NewCollector(cfg CollectorConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "polaris"
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}
	}

	c := &Collector{
		registry: registry,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream attempt outcomes by provider, logical model, and result.",
		}, []string{"provider", "model", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Upstream attempt latency by provider and logical model.",
			Buckets:   cfg.LatencyBuckets,
		}, []string{"provider", "model"}),
		providerHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "provider",
			Name:      "healthy",
			Help:      "Provider health classification (1 healthy, 0.5 degraded, 0 down).",
		}, []string{"provider"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "routing",
			Name:      "failovers_total",
			Help:      "Failover attempts by the provider that was abandoned.",
		}, []string{"provider"}),
		catalogRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "catalog",
			Name:      "rebuilds_total",
			Help:      "Catalog rebuilds triggered by cache misses or invalidation.",
		}),
	}

	registry.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.providerHealth,
		c.failovers,
		c.catalogRebuilds,
	)
	return c
}

// RecordOutcome records one upstream attempt.
func (c *Collector) RecordOutcome(provider, model string, kind OutcomeKind, latency time.Duration) {
	c.upstreamRequests.WithLabelValues(provider, model, string(kind)).Inc()
	c.upstreamLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordFailover records an abandoned attempt against a provider.
func (c *Collector) RecordFailover(provider string) {
	c.failovers.WithLabelValues(provider).Inc()
}

// UpdateHealth publishes a provider's current classification.
func (c *Collector) UpdateHealth(provider string, status string) {
	var v float64
	switch status {
	case "healthy":
		v = 1
	case "degraded":
		v = 0.5
	}
	c.providerHealth.WithLabelValues(provider).Set(v)
}

// RecordCatalogRebuild counts one catalog rebuild.
func (c *Collector) RecordCatalogRebuild() {
	c.catalogRebuilds.Inc()
}

// Registry returns the Prometheus registry for /metrics exposure.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
