package secrets

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// CachedManager keeps credentials fetched from the wrapped Manager for ttl
// so that reconnects do not hit Vault every time
type CachedManager struct {
	next Manager
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedManager wraps next with a ttl cache
func NewCachedManager(next Manager, ttl time.Duration) *CachedManager {
	return &CachedManager{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetDatabaseCredentials returns cached database credentials
func (c *CachedManager) GetDatabaseCredentials(ctx context.Context) (*DatabaseCredentials, error) {
	v, err := c.get("database", func() (interface{}, error) {
		return c.next.GetDatabaseCredentials(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DatabaseCredentials), nil
}

// GetRedisCredentials returns cached Redis credentials
func (c *CachedManager) GetRedisCredentials(ctx context.Context) (*RedisCredentials, error) {
	v, err := c.get("redis", func() (interface{}, error) {
		return c.next.GetRedisCredentials(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RedisCredentials), nil
}

// Invalidate drops every cached value
func (c *CachedManager) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Health is not cached
func (c *CachedManager) Health(ctx context.Context) error {
	return c.next.Health(ctx)
}

// Close closes the wrapped manager
func (c *CachedManager) Close() error {
	c.Invalidate()
	return c.next.Close()
}

// get holds the lock across fetch so concurrent misses fetch once. Errors
// are not cached.
func (c *CachedManager) get(key string, fetch func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		return e.value, nil
	}

	v, err := fetch()
	if err != nil {
		return nil, err
	}
	c.entries[key] = cacheEntry{value: v, expiresAt: c.now().Add(c.ttl)}
	return v, nil
}
