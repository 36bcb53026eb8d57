// Package catalog maintains the logical model registry: the mapping from a
// caller-facing logical model name to the ordered set of candidate
// (provider, physical model) upstreams able to serve it.
//
// The catalog is cache-aside: lookups consult the shared cache first and
// rebuild the full model set from the durable provider configuration store
// on miss. Rebuilds are coalesced with a single-flight guard so that an
// invalidation followed by a burst of concurrent misses triggers exactly
// one store read. A rebuild failure never surfaces as a hard error for
// reads that can be served from the existing cache.
package catalog
