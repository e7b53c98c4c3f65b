// Package cache defines the cache interface used for resolved access
// decisions and other request-scoped lookups.
package cache

import (
	"context"
	"time"
)

// Cache stores values under string keys with per-entry TTL.
type Cache interface {
	// Get retrieves a value, returning it and true when found.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
}

// HitRate returns the cache hit rate between 0.0 and 1.0.
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
