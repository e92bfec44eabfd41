package cache

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is the minimum gap between sweeps triggered by Set.
const sweepInterval = time.Second

// MemoryCache implements an in-process cache.
// Entries carry their own expiration. Expired entries are dropped on access,
// by Cleanup, and by Set once the earliest known expiry has passed.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	now        func() time.Time
	nextExpiry time.Time // earliest ExpiresAt, zero when nothing expires
	lastSweep  time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// cacheEntry wraps cached data with metadata.
type cacheEntry struct {
	Data      []byte
	ExpiresAt time.Time
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !entry.ExpiresAt.IsZero() && c.now().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	return entry.Data, true, nil
}

// Set stores a copy of data in the cache.
func (c *MemoryCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := cacheEntry{
		Data: append([]byte(nil), data...),
	}
	if ttl > 0 {
		entry.ExpiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.nextExpiry.IsZero() && now.After(c.nextExpiry) && now.Sub(c.lastSweep) >= sweepInterval {
		c.sweepLocked(now)
	}
	c.entries[key] = entry
	if !entry.ExpiresAt.IsZero() && (c.nextExpiry.IsZero() || entry.ExpiresAt.Before(c.nextExpiry)) {
		c.nextExpiry = entry.ExpiresAt
	}
	return nil
}

// Cleanup drops every expired entry and returns how many were removed.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	var next time.Time
	for key, e := range c.entries {
		if e.ExpiresAt.IsZero() {
			continue
		}
		if now.After(e.ExpiresAt) {
			delete(c.entries, key)
			removed++
			continue
		}
		if next.IsZero() || e.ExpiresAt.Before(next) {
			next = e.ExpiresAt
		}
	}
	c.nextExpiry = next
	c.lastSweep = now
	return removed
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.nextExpiry = time.Time{}
	c.mu.Unlock()
	return nil
}

// Ensure MemoryCache implements Cache and Sweeper.
var (
	_ Cache   = (*MemoryCache)(nil)
	_ Sweeper = (*MemoryCache)(nil)
)
