// Package memory provides an in-process progress cache for development and
// testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/skuline/product-import/internal/catalog"
)

type entry struct {
	processed int64
	expiresAt time.Time
}

// ProgressCache is a map-backed stand-in for the Redis tier.
type ProgressCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewProgressCache constructs an empty cache.
func NewProgressCache() *ProgressCache {
	return &ProgressCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetProgress stores the running count with no expiry.
func (c *ProgressCache) SetProgress(_ context.Context, jobID string, processed int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jobID] = entry{processed: processed}
	return nil
}

// GetProgress returns the cached count or catalog.ErrNotFound.
func (c *ProgressCache) GetProgress(_ context.Context, jobID string) (int64, error) {
	c.mu.RLock()
	e, ok := c.entries[jobID]
	c.mu.RUnlock()
	if !ok {
		return 0, catalog.ErrNotFound
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, jobID)
		c.mu.Unlock()
		return 0, catalog.ErrNotFound
	}
	return e.processed, nil
}

// ExpireProgress bounds the entry's remaining lifetime.
func (c *ProgressCache) ExpireProgress(_ context.Context, jobID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[jobID]
	if !ok {
		return nil
	}
	e.expiresAt = c.now().Add(ttl)
	c.entries[jobID] = e
	return nil
}
