package web

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "sdmxreg:render:"

// RenderCache caches rendered structure documents in Redis, keyed by the
// normalized query. A nil cache is valid and caches nothing. Cache errors
// degrade to misses; they never fail the request.
type RenderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRenderCache wraps an existing Redis client. A zero ttl defaults to
// five minutes.
func NewRenderCache(client *redis.Client, ttl time.Duration) *RenderCache {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &RenderCache{client: client, ttl: ttl}
}

// Get returns the cached document for the key, if present.
func (c *RenderCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	value, err := c.client.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a rendered document under the key.
func (c *RenderCache) Set(ctx context.Context, key string, value []byte) {
	if c == nil {
		return
	}
	c.client.Set(ctx, cachePrefix+key, value, c.ttl)
}

// Invalidate drops every cached document. Called after a submission
// changes stored structures; any cached query may now be stale.
func (c *RenderCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, cachePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the underlying client.
func (c *RenderCache) Close() error {
	if c == nil {
		return nil
	}
	err := c.client.Close()
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
