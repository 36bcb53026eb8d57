// Package metrics is the health/metrics aggregation layer feeding routing
// decisions and observability surfaces.
//
// Every upstream attempt outcome flows through the Aggregator, which
// updates three sinks:
//   - durable, time-bucketed counters in SQLite (one idempotent
//     accumulate-upsert per outcome, at most one row per key per window),
//   - ephemeral live aggregates in the shared cache, read on the request
//     hot path by the provider selector,
//   - Prometheus counters and histograms for scrape-based monitoring.
//
// The Aggregator also derives each provider's health classification
// (healthy, degraded, down) from trailing error rates and probe results.
// Recording is best-effort: a sink failure is logged and dropped, never
// propagated into the primary request path.
package metrics
