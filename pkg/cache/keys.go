package cache

import "fmt"

// Key namespace prefixes. These are stable strings relied upon by
// operational tooling for prefix-targeted invalidation; changing them is a
// breaking change.
const (
	// Namespace is the root prefix for all gateway keys.
	Namespace = "polaris"

	// CatalogPrefix covers all cached logical model entries.
	CatalogPrefix = Namespace + ":catalog:"

	// HealthPrefix covers per-provider health snapshots.
	HealthPrefix = Namespace + ":health:"

	// LiveMetricsPrefix covers per-(logical model, provider) live
	// aggregate hashes.
	LiveMetricsPrefix = Namespace + ":metrics:live:"
)

// CatalogModelKey returns the cache key for one logical model entry.
func CatalogModelKey(logicalID string) string {
	return fmt.Sprintf("%smodel:%s", CatalogPrefix, logicalID)
}

// CatalogIndexKey returns the cache key holding the list of all cached
// logical model IDs. Written together with the per-model entries on every
// rebuild so List can answer from cache.
func CatalogIndexKey() string {
	return CatalogPrefix + "index"
}

// HealthSnapshotKey returns the cache key for a provider's health snapshot.
func HealthSnapshotKey(providerID string) string {
	return fmt.Sprintf("%sprovider:%s", HealthPrefix, providerID)
}

// LiveMetricsKey returns the hash key for the live aggregate counters of
// one (logical model, provider) pair.
func LiveMetricsKey(logicalModel, providerID string) string {
	return fmt.Sprintf("%s%s:%s", LiveMetricsPrefix, logicalModel, providerID)
}
