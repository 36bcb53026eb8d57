// Package cache provides the shared cache/store client used by the gateway
// core for catalog entries, health snapshots, live metric aggregates, and
// operational invalidation.
//
// Two implementations are provided:
//   - RedisClient: backed by Redis, suitable for multi-instance deployments
//     where catalog invalidation and live metrics must be shared.
//   - MemoryClient: in-process, used for tests and single-instance
//     deployments without a Redis dependency.
//
// All keys follow the stable namespace convention
// "polaris:kind:identifier[:sub-identifier]" (see keys.go) so that
// operational tooling can target invalidation by prefix.
package cache
