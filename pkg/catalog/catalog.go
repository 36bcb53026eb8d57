package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"polaris-ai/polaris/pkg/cache"
)

// Catalog is the cache-aside logical model registry.
//
// Lookups answer from the shared cache; on miss the full model set is
// re-aggregated from the provider configuration store and written back.
// Concurrent misses for the same build are coalesced through a
// single-flight group so an invalidation burst triggers one rebuild, not N.
//
// Catalog is safe for concurrent use.
type Catalog struct {
	store    Store
	cache    cache.Client
	group    singleflight.Group
	observer RebuildObserver
	logger   *slog.Logger
}

// RebuildObserver counts completed catalog rebuilds. The metrics collector
// satisfies it.
type RebuildObserver interface {
	RecordCatalogRebuild()
}

// New creates a catalog over the given configuration store and cache client.
func New(store Store, cacheClient cache.Client) *Catalog {
	return &Catalog{
		store:  store,
		cache:  cacheClient,
		logger: slog.Default().With("component", "catalog"),
	}
}

// SetRebuildObserver registers an observer notified once per completed
// rebuild. Coalesced concurrent rebuilds count as one. Must be called
// before the catalog serves traffic.
func (c *Catalog) SetRebuildObserver(obs RebuildObserver) {
	c.observer = obs
}

// Get resolves one logical model.
//
// Returns ErrModelNotFound if the model is unknown after a rebuild.
// If the configuration store is unavailable, a cached entry is served
// stale; only when no cached entry exists does the failure surface, and
// then as NotFound semantics via StoreUnavailableError.
func (c *Catalog) Get(ctx context.Context, logicalID string) (*LogicalModel, error) {
	if model, ok := c.cachedModel(ctx, logicalID); ok {
		return model, nil
	}

	if err := c.rebuild(ctx); err != nil {
		// Rebuild failed; a stale entry (if any survived) already answered
		// above, so this miss has nothing to fall back to.
		c.logger.Error("catalog rebuild failed", "logical_model", logicalID, "error", err)
		return nil, &StoreUnavailableError{Cause: err}
	}

	if model, ok := c.cachedModel(ctx, logicalID); ok {
		return model, nil
	}
	return nil, &ModelNotFoundError{LogicalID: logicalID}
}

// List returns all published logical models, rebuilding the cache if the
// index is missing.
func (c *Catalog) List(ctx context.Context) ([]LogicalModel, error) {
	ids, ok := c.cachedIndex(ctx)
	if !ok {
		if err := c.rebuild(ctx); err != nil {
			return nil, &StoreUnavailableError{Cause: err}
		}
		ids, _ = c.cachedIndex(ctx)
	}

	models := make([]LogicalModel, 0, len(ids))
	for _, id := range ids {
		if model, ok := c.cachedModel(ctx, id); ok {
			models = append(models, *model)
		}
	}
	return models, nil
}

// Invalidate clears all cached catalog entries. The next lookup forces a
// rebuild. Called by provider CRUD collaborators after create/update/delete
// so that no half-updated grouping is ever served.
func (c *Catalog) Invalidate(ctx context.Context) error {
	removed, err := c.cache.DeletePattern(ctx, cache.CatalogPrefix+"*")
	if err != nil {
		return fmt.Errorf("catalog invalidation failed: %w", err)
	}
	c.logger.Info("catalog invalidated", "entries_removed", removed)
	return nil
}

// InvalidateAndRebuild clears the cache and synchronously re-aggregates
// from the configuration store.
func (c *Catalog) InvalidateAndRebuild(ctx context.Context) error {
	if err := c.Invalidate(ctx); err != nil {
		return err
	}
	return c.rebuild(ctx)
}

// rebuild aggregates all provider records into logical model groupings and
// writes the full set back to the cache. Coalesced via single-flight: every
// concurrent caller shares the result of one store read.
func (c *Catalog) rebuild(ctx context.Context) error {
	_, err, shared := c.group.Do("rebuild", func() (any, error) {
		return nil, c.rebuildLocked(ctx)
	})
	if err == nil && shared {
		c.logger.Debug("catalog rebuild shared with concurrent callers")
	}
	return err
}

func (c *Catalog) rebuildLocked(ctx context.Context) error {
	records, err := c.store.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list providers: %w", err)
	}

	grouped := aggregate(records)

	ids := make([]string, 0, len(grouped))
	for id, model := range grouped {
		data, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("failed to encode logical model %q: %w", id, err)
		}
		if err := c.cache.Set(ctx, cache.CatalogModelKey(id), string(data), 0); err != nil {
			return fmt.Errorf("failed to cache logical model %q: %w", id, err)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode catalog index: %w", err)
	}
	if err := c.cache.Set(ctx, cache.CatalogIndexKey(), string(index), 0); err != nil {
		return fmt.Errorf("failed to cache catalog index: %w", err)
	}

	if c.observer != nil {
		c.observer.RecordCatalogRebuild()
	}
	c.logger.Info("catalog rebuilt",
		"providers", len(records),
		"logical_models", len(ids),
	)
	return nil
}

// aggregate groups provider model declarations by logical ID. Upstream
// order within a model is deterministic: providers sorted by ID, models in
// declaration order. Models with zero upstreams are never published.
func aggregate(records []ProviderRecord) map[string]*LogicalModel {
	grouped := make(map[string]*LogicalModel)

	sorted := make([]ProviderRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, rec := range sorted {
		for _, mapping := range rec.Models {
			if mapping.LogicalID == "" {
				continue
			}
			model, ok := grouped[mapping.LogicalID]
			if !ok {
				model = &LogicalModel{ID: mapping.LogicalID}
				grouped[mapping.LogicalID] = model
			}
			model.Upstreams = append(model.Upstreams, Upstream{
				ProviderID:      rec.ID,
				PhysicalModelID: mapping.PhysicalID,
				Transport:       rec.Transport,
				Weight:          rec.Weight,
				Capabilities:    mapping.Capabilities,
			})
		}
	}
	return grouped
}

func (c *Catalog) cachedModel(ctx context.Context, logicalID string) (*LogicalModel, bool) {
	raw, ok, err := c.cache.Get(ctx, cache.CatalogModelKey(logicalID))
	if err != nil {
		c.logger.Warn("catalog cache read failed", "logical_model", logicalID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var model LogicalModel
	if err := json.Unmarshal([]byte(raw), &model); err != nil {
		c.logger.Warn("corrupt catalog cache entry", "logical_model", logicalID, "error", err)
		return nil, false
	}
	if len(model.Upstreams) == 0 {
		return nil, false
	}
	return &model, true
}

func (c *Catalog) cachedIndex(ctx context.Context) ([]string, bool) {
	raw, ok, err := c.cache.Get(ctx, cache.CatalogIndexKey())
	if err != nil || !ok {
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// ProviderRecordFor returns the configuration record for one provider,
// used by the executor for per-provider retry sets and credentials.
func (c *Catalog) ProviderRecordFor(ctx context.Context, providerID string) (*ProviderRecord, bool, error) {
	return c.store.GetProvider(ctx, providerID)
}

// Providers returns every configured provider record straight from the
// store, bypassing the cache.
func (c *Catalog) Providers(ctx context.Context) ([]ProviderRecord, error) {
	return c.store.ListProviders(ctx)
}
