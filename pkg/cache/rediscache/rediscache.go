// Package rediscache implements cache.Cache on Redis, for deployments that
// want access decisions shared across instances. Values are gob-encoded;
// concrete value types must be registered with encoding/gob by the caller.
package rediscache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tesserahq/tessera/pkg/cache"
)

// Config holds configuration for the Redis cache.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache implements cache.Cache backed by a Redis instance.
type Cache struct {
	client *redis.Client
	prefix string

	hits      atomic.Uint64
	misses    atomic.Uint64
	keysAdded atomic.Uint64
}

// New creates a Redis cache and verifies connectivity.
func New(ctx context.Context, config *Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "tessera:"
	}
	return &Cache{client: client, prefix: prefix}, nil
}

// Get retrieves and decodes a value.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var value interface{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return value, true
}

// Set encodes and stores a value with TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache value: %w", err)
	}
	c.keysAdded.Add(1)
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete cache value: %w", err)
	}
	return nil
}

// Clear removes all entries under the cache's prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Metrics returns client-side cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	return &cache.Metrics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		KeysAdded: c.keysAdded.Load(),
	}
}
