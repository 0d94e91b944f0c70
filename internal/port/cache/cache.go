// Package cache defines the key-value cache port. The orchestrator uses it
// to cache org connector records in front of the database; implementations
// live under internal/adapter (ristretto, natskv, tiered).
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key-value cache. Get reports a miss through the
// second return value so callers can distinguish "not cached" from a real
// backend error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
