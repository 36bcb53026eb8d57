package cache

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryClient implements Client with an in-process map. It mirrors the
// Redis semantics closely enough for tests and single-instance deployments:
// expired entries are lazily dropped on read and swept periodically by a
// background goroutine.
type MemoryClient struct {
	mu      sync.RWMutex
	values  map[string]memoryEntry
	hashes  map[string]map[string]int64
	expires map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryClient creates an in-process cache client and starts its
// expiry sweeper.
func NewMemoryClient() *MemoryClient {
	c := &MemoryClient{
		values:  make(map[string]memoryEntry),
		hashes:  make(map[string]map[string]int64),
		expires: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

func (c *MemoryClient) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryClient) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.values {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.values, key)
		}
	}
	for key, deadline := range c.expires {
		if now.After(deadline) {
			delete(c.hashes, key)
			delete(c.expires, key)
		}
	}
}

// Get retrieves the value stored under key.
func (c *MemoryClient) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.values[key]
	c.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.values, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key with the given ttl (zero means no expiry).
func (c *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	c.values[key] = entry
	c.mu.Unlock()
	return nil
}

// Delete removes the given keys from both the value and hash spaces.
func (c *MemoryClient) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.values, key)
		delete(c.hashes, key)
		delete(c.expires, key)
	}
	return nil
}

// DeletePattern removes all keys matching the glob-style pattern.
func (c *MemoryClient) DeletePattern(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.values {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.values, key)
			removed++
		}
	}
	for key := range c.hashes {
		if matched, _ := path.Match(pattern, key); matched {
			delete(c.hashes, key)
			delete(c.expires, key)
			removed++
		}
	}
	return removed, nil
}

// IncrField atomically increments a hash field.
func (c *MemoryClient) IncrField(_ context.Context, key, field string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, ok := c.hashes[key]
	if !ok {
		hash = make(map[string]int64)
		c.hashes[key] = hash
	}
	hash[field] += delta
	return hash[field], nil
}

// GetFields returns all fields of the hash stored at key.
func (c *MemoryClient) GetFields(_ context.Context, key string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hash, ok := c.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(hash))
	for field, val := range hash {
		out[field] = strconv.FormatInt(val, 10)
	}
	return out, nil
}

// Expire sets a ttl on an existing key.
func (c *MemoryClient) Expire(_ context.Context, key string, ttl time.Duration) error {
	deadline := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.values[key]; ok {
		entry.expiresAt = deadline
		c.values[key] = entry
	}
	if _, ok := c.hashes[key]; ok {
		c.expires[key] = deadline
	}
	return nil
}

// Close stops the expiry sweeper.
func (c *MemoryClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}
