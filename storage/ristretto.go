package storage

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CacheConfig sizes the in-memory render cache.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// Cache is the in-memory render cache, keyed by source and render settings.
// Cost is the encoded size, so MaxCost is a byte budget.
type Cache struct {
	cache *ristretto.Cache[string, Object]
	ttl   time.Duration
}

// NewCache creates a Cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, Object]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c, ttl: cfg.TTL}, nil
}

// Get retrieves a rendered image.
func (c *Cache) Get(key string) (Object, bool) {
	return c.cache.Get(key)
}

// Set stores a rendered image. It reports false when the admission policy
// dropped it.
func (c *Cache) Set(key string, obj Object) bool {
	return c.cache.SetWithTTL(key, obj, int64(len(obj.Body)), c.ttl)
}

// Wait blocks until pending sets are applied.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Delete removes a rendered image.
func (c *Cache) Delete(key string) {
	c.cache.Del(key)
}

// Close stops the cache goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}
