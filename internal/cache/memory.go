package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/symptom-ledger-server/internal/domain"
)

const defaultMaxItems = 1000

// MemoryCache is an in-process LRU of symptom logs with per-entry expiry.
// Logs are cloned on the way in and out, so callers never share a record with
// the cache.
type MemoryCache struct {
	lru *expirable.LRU[string, *domain.SymptomLog]
}

// NewMemoryCache creates a cache holding at most maxItems logs for ttl each
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *domain.SymptomLog](maxItems, nil, ttl),
	}
}

// Get returns a copy of the cached log of userID
func (c *MemoryCache) Get(_ context.Context, userID string) (*domain.SymptomLog, bool, error) {
	log, ok := c.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return log.Clone(), true, nil
}

// Set caches a copy of log
func (c *MemoryCache) Set(_ context.Context, log *domain.SymptomLog) error {
	c.lru.Add(log.UserID, log.Clone())
	return nil
}

// Invalidate removes the cached log of userID
func (c *MemoryCache) Invalidate(_ context.Context, userID string) error {
	c.lru.Remove(userID)
	return nil
}

// Len returns the number of cached logs
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close empties the cache
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
