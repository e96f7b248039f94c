// Package cache provides the short-lived response cache shared by the
// upstream news and price adapters. Values are opaque byte slices; callers
// own their encoding.
package cache

import (
	"context"
	"time"
)

// Cache stores values for a bounded time.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New returns a Redis-backed cache when redisURL is set and an in-process
// cache otherwise.
func New(redisURL string, size int, ttl time.Duration) (Cache, error) {
	if redisURL != "" {
		return NewRedis(redisURL)
	}
	return NewMemory(size, ttl), nil
}
