// Package catalogtest provides an in-memory provider store for tests.
package catalogtest

import (
	"context"
	"sync"

	"polaris-ai/polaris/pkg/catalog"
)

// Store is an in-memory implementation of catalog.Store with error
// injection and call counting, for tests that exercise cache-aside and
// failure behavior.
type Store struct {
	mu        sync.Mutex
	providers []catalog.ProviderRecord
	err       error
	listCalls int
}

// NewStore creates a store seeded with the given provider records.
func NewStore(providers ...catalog.ProviderRecord) *Store {
	return &Store{providers: providers}
}

// SetProviders replaces the stored records.
func (s *Store) SetProviders(providers ...catalog.ProviderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = providers
}

// FailWith makes subsequent calls return err. Pass nil to heal the store.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ListCalls reports how many times ListProviders has been invoked.
func (s *Store) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// ListProviders implements catalog.Store.
func (s *Store) ListProviders(ctx context.Context) ([]catalog.ProviderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]catalog.ProviderRecord, len(s.providers))
	copy(out, s.providers)
	return out, nil
}

// GetProvider implements catalog.Store.
func (s *Store) GetProvider(ctx context.Context, id string) (*catalog.ProviderRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, false, s.err
	}
	for _, rec := range s.providers {
		if rec.ID == id {
			cp := rec
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// Close implements catalog.Store.
func (s *Store) Close() error {
	return nil
}
