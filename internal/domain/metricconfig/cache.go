package metricconfig

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched remote configuration stays fresh.
const DefaultCacheTTL = 60 * time.Second

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache holds the last remote configuration and when it was fetched.
// It is owned by the composition root and shared by resolvers.
type Cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	config    Config
	fetchedAt time.Time
	filled    bool
}

// NewCache creates an empty cache. A non-positive ttl uses DefaultCacheTTL.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached configuration while it is younger than the TTL.
func (c *Cache) Get() (Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.filled || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.config.Clone(), true
}

// Put stores cfg stamped with the current time.
func (c *Cache) Put(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg.Clone()
	c.fetchedAt = c.now()
	c.filled = true
}

// Invalidate drops the cached configuration.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = nil
	c.filled = false
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }
