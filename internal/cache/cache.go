// Package cache is the key/value layer shared by the lock manager and the
// materialized schedule. Values are strings; counters are decimal strings.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal distributed cache surface the scheduler needs.
// A ttl of zero means the key does not expire.
type Cache interface {
	// Get returns the value of key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Add stores value only if key is absent and reports whether it did.
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr and Decr treat a missing key as zero.
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	Delete(ctx context.Context, keys ...string) error
}
