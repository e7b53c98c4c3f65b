// Package memorycache is an in-process LRU cache with TTL, bounded by entry
// count. It is the default backend for access-decision caching.
package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/tesserahq/tessera/pkg/cache"
)

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries bounds the number of cached items; least recently used
	// items are evicted past the bound. Zero means 10000.
	MaxEntries int

	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration
}

// Cache implements cache.Cache with an LRU list guarded by a mutex.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	evictList  *list.List // front = most recent
	maxEntries int
	defaultTTL time.Duration

	hits        uint64
	misses      uint64
	keysAdded   uint64
	keysEvicted uint64
}

// New creates a memory cache.
func New(config *Config) *Cache {
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxEntries: maxEntries,
		defaultTTL: ttl,
	}
}

// Get retrieves a value, expiring it lazily when its TTL has passed.
func (c *Cache) Get(_ context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}
	c.evictList.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Set stores a value, evicting the least recently used entries when the
// cache is full.
func (c *Cache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.evictList.MoveToFront(elem)
		return nil
	}

	elem := c.evictList.PushFront(&entry{key: key, value: value, expiresAt: time.Now().Add(ttl)})
	c.items[key] = elem
	c.keysAdded++

	for c.evictList.Len() > c.maxEntries {
		oldest := c.evictList.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.keysEvicted++
	}
	return nil
}

// Delete removes a value.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	return nil
}

// Close releases nothing for the in-process cache.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &cache.Metrics{
		Hits:        c.hits,
		Misses:      c.misses,
		KeysAdded:   c.keysAdded,
		KeysEvicted: c.keysEvicted,
	}
}

func (c *Cache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.evictList.Remove(elem)
}
