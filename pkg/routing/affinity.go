package routing

import (
	"sync"
	"time"
)

// AffinityManager is a thread-safe session affinity cache with a sliding
// idle TTL and LRU eviction. It binds a session identifier to a previously
// chosen (provider, model) pair so successive turns of one conversation
// prefer the same upstream.
//
// The manager never chooses providers itself: it only supplies a hint
// consumed by the Selector, and is rebound by the executor after each
// successful attempt.
type AffinityManager struct {
	// entries maps session IDs to bindings
	entries map[string]*Session

	// ttl is the idle time-to-live, sliding from last access
	ttl time.Duration

	// maxEntries caps the cache size (0 = unlimited)
	maxEntries int

	// mu protects concurrent access
	mu sync.RWMutex

	// stopCh signals the cleanup goroutine to stop
	stopCh   chan struct{}
	stopOnce sync.Once

	// cleanupInterval is how often to sweep expired bindings
	cleanupInterval time.Duration
}

// NewAffinityManager creates an affinity manager with the given idle TTL
// and entry cap. If ttl is 0 bindings never expire; if maxEntries is 0 the
// cache is unbounded.
func NewAffinityManager(ttl time.Duration, maxEntries int) *AffinityManager {
	cleanupInterval := time.Minute
	if ttl > 0 {
		cleanupInterval = ttl / 2
		if cleanupInterval < 10*time.Second {
			cleanupInterval = 10 * time.Second
		}
	}

	m := &AffinityManager{
		entries:         make(map[string]*Session),
		ttl:             ttl,
		maxEntries:      maxEntries,
		stopCh:          make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	if ttl > 0 {
		go m.cleanupExpired()
	}
	return m
}

// Get returns the session bound to sessionID, refreshing its idle TTL.
// Returns (nil, false) if no binding exists or it has expired.
func (m *AffinityManager) Get(sessionID string) (*Session, bool) {
	if sessionID == "" {
		return nil, false
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return nil, false
	}
	if m.expired(entry, now) {
		delete(m.entries, sessionID)
		return nil, false
	}

	// Sliding window: every access refreshes the idle TTL.
	entry.LastAccessed = now

	copied := *entry
	return &copied, true
}

// Bind upserts the binding for sessionID to (providerID, modelID). The
// upsert is idempotent: rebinding an existing session updates the target
// and refreshes LastAccessed while preserving CreatedAt.
func (m *AffinityManager) Bind(sessionID, logicalModel, providerID, modelID string) *Session {
	if sessionID == "" {
		return nil
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[sessionID]; ok && !m.expired(entry, now) {
		entry.LogicalModel = logicalModel
		entry.ProviderID = providerID
		entry.ModelID = modelID
		entry.LastAccessed = now
		copied := *entry
		return &copied
	}

	if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLRU()
	}

	entry := &Session{
		SessionID:    sessionID,
		LogicalModel: logicalModel,
		ProviderID:   providerID,
		ModelID:      modelID,
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.entries[sessionID] = entry

	copied := *entry
	return &copied
}

// Delete removes a binding.
func (m *AffinityManager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, sessionID)
}

// Size returns the current number of bindings.
func (m *AffinityManager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Close stops the background cleanup goroutine.
func (m *AffinityManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *AffinityManager) expired(entry *Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(entry.LastAccessed) > m.ttl
}

// evictLRU evicts the least recently accessed binding.
// Must be called with the write lock held.
func (m *AffinityManager) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.entries {
		if oldestKey == "" || entry.LastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastAccessed
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

// cleanupExpired sweeps expired bindings until Close is called.
func (m *AffinityManager) cleanupExpired() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *AffinityManager) removeExpired() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if m.expired(entry, now) {
			delete(m.entries, key)
		}
	}
}
