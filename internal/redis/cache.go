package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const payloadPrefix = "chat:payload:"

// PayloadCache stores rendered message payloads keyed by message id.
type PayloadCache struct {
	client *redis.Client
	prefix string
	stats  CacheStats
}

type CacheStats struct {
	Hits   atomic.Uint64
	Misses atomic.Uint64
	Sets   atomic.Uint64
	Errors atomic.Uint64
}

type CacheStatsSnapshot struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Sets   uint64 `json:"sets"`
	Errors uint64 `json:"errors"`
}

func NewPayloadCache(client *redis.Client) *PayloadCache {
	return &PayloadCache{client: client, prefix: payloadPrefix}
}

// Get returns the cached payload and whether it was found. A miss is not an error.
func (c *PayloadCache) Get(ctx context.Context, messageID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+messageID).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.Misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.stats.Errors.Add(1)
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}
	c.stats.Hits.Add(1)
	return data, true, nil
}

func (c *PayloadCache) Set(ctx context.Context, messageID string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+messageID, payload, ttl).Err(); err != nil {
		c.stats.Errors.Add(1)
		return fmt.Errorf("cache set error: %w", err)
	}
	c.stats.Sets.Add(1)
	return nil
}

func (c *PayloadCache) Stats() CacheStatsSnapshot {
	return CacheStatsSnapshot{
		Hits:   c.stats.Hits.Load(),
		Misses: c.stats.Misses.Load(),
		Sets:   c.stats.Sets.Load(),
		Errors: c.stats.Errors.Load(),
	}
}
