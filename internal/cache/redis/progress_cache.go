// Package redis implements the ephemeral progress tier on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skuline/product-import/internal/catalog"
)

// ProgressCache stores per-job processed counts under a key scoped by job id.
type ProgressCache struct {
	client *redis.Client
}

// NewProgressCache connects a client from the given URL and verifies the
// connection so misconfiguration fails at startup.
func NewProgressCache(ctx context.Context, url string) (*ProgressCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &ProgressCache{client: client}, nil
}

// NewProgressCacheFromClient wraps an existing client (used in tests).
func NewProgressCacheFromClient(client *redis.Client) *ProgressCache {
	return &ProgressCache{client: client}
}

func progressKey(jobID string) string {
	return "import:progress:" + jobID
}

// SetProgress writes the running count with no expiry; active jobs keep the
// entry alive until ExpireProgress bounds it.
func (c *ProgressCache) SetProgress(ctx context.Context, jobID string, processed int64) error {
	if err := c.client.Set(ctx, progressKey(jobID), processed, 0).Err(); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// GetProgress returns the cached count, or catalog.ErrNotFound when the key
// is absent.
func (c *ProgressCache) GetProgress(ctx context.Context, jobID string) (int64, error) {
	n, err := c.client.Get(ctx, progressKey(jobID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, catalog.ErrNotFound
		}
		return 0, fmt.Errorf("get progress: %w", err)
	}
	return n, nil
}

// ExpireProgress puts the entry on a bounded TTL after terminal transitions.
func (c *ProgressCache) ExpireProgress(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, progressKey(jobID), ttl).Err(); err != nil {
		return fmt.Errorf("expire progress: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *ProgressCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
