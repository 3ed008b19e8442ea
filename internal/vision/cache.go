package vision

import (
	"context"
	"sync"
	"time"
)

// ExtractionCache memoizes document extraction results keyed by storage key.
// Stored images are immutable, so a hit is always current; the TTL only
// bounds memory and lets corrected provider models take effect eventually.
type ExtractionCache interface {
	Get(ctx context.Context, imageKey string) (*Extraction, bool)
	Set(ctx context.Context, imageKey string, extraction *Extraction)
}

type memoryCacheEntry struct {
	extraction Extraction
	expiresAt  time.Time
}

// MemoryCache is a TTL map cache for single-instance deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, imageKey string) (*Extraction, bool) {
	c.mu.RLock()
	entry, ok := c.entries[imageKey]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	ext := entry.extraction
	return &ext, true
}

func (c *MemoryCache) Set(_ context.Context, imageKey string, extraction *Extraction) {
	if extraction == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic sweep keeps the map from growing without bound.
	if len(c.entries) > 10000 {
		now := c.now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[imageKey] = memoryCacheEntry{extraction: *extraction, expiresAt: c.now().Add(c.ttl)}
}
