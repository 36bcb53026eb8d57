package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers on read paths should degrade to stale data where possible;
// callers on write paths should log and drop (metrics are best-effort).
var ErrUnavailable = errors.New("cache backend unavailable")

// Client is the cache/store abstraction consumed by the gateway core.
// All implementations must be safe for concurrent use.
//
// Mutating operations are designed as upserts so that concurrent writers
// never require external locking beyond what the backend guarantees:
// Set replaces, IncrField atomically accumulates.
type Client interface {
	// Get retrieves the value stored under key.
	// The second return value is false if the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes all keys matching the glob-style pattern
	// (e.g. "polaris:catalog:*"). Returns the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// IncrField atomically increments a field of the hash stored at key by
	// delta, creating the hash and field as needed. Returns the new value.
	// Two concurrent increments for the same field are both reflected
	// exactly once each.
	IncrField(ctx context.Context, key, field string, delta int64) (int64, error)

	// GetFields returns all fields of the hash stored at key.
	// Returns an empty map if the key does not exist.
	GetFields(ctx context.Context, key string) (map[string]string, error)

	// Expire sets a ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases the client's resources.
	Close() error
}
