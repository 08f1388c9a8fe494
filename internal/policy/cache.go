package policy

import (
	"sync"
	"time"
)

// defaultTTL bounds how long a cached policy may serve before reload.
const defaultTTL = 5 * time.Minute

type cached struct {
	policy  *ClientPolicy
	hash    string
	expires time.Time
}

// Loader produces a policy and its hash for a customer.
type Loader func(customerID string) (*ClientPolicy, string, error)

// Cache is a short-lived per-customer policy cache with explicit
// invalidation. Policies stay immutable values; the cache only decides when
// to reload, it never mutates what it holds.
type Cache struct {
	loader  Loader
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]cached
	now     func() time.Time
}

// NewCache creates a cache around a loader. ttl <= 0 uses the default.
func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		loader:  loader,
		ttl:     ttl,
		entries: make(map[string]cached),
		now:     time.Now,
	}
}

// Get returns the policy and hash for a customer, loading on miss or expiry.
func (c *Cache) Get(customerID string) (*ClientPolicy, string, error) {
	c.mu.Lock()
	if e, ok := c.entries[customerID]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.policy, e.hash, nil
	}
	c.mu.Unlock()

	p, hash, err := c.loader(customerID)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.entries[customerID] = cached{policy: p, hash: hash, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return p, hash, nil
}

// Invalidate drops one customer's cached policy.
func (c *Cache) Invalidate(customerID string) {
	c.mu.Lock()
	delete(c.entries, customerID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached policy. Used by the policy file watcher.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cached)
	c.mu.Unlock()
}
