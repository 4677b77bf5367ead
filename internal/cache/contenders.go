// Package cache publishes and reads per-strategy contender lists in
// Redis under the amc:discovery:v2 keyspace.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/amc-trader/discovery/internal/models"
)

// Key layout. The unsuffixed fallback key always mirrors the default
// strategy's list.
const (
	keyPrefix   = "amc:discovery:v2:contenders.latest"
	DefaultTTL  = 600 * time.Second
	statsSuffix = ":stats"
)

// StrategyKey returns the cache key for a strategy's contender list.
func StrategyKey(strategyID string) string {
	if strategyID == "" {
		return keyPrefix
	}
	return keyPrefix + ":" + strategyID
}

// ContenderCache is the Redis-backed publish/read surface. One writer
// per strategy (the active run), many readers.
type ContenderCache struct {
	client            redis.Cmdable
	ttl               time.Duration
	defaultStrategyID string
}

// New builds the cache on an existing Redis client.
func New(client redis.Cmdable, ttl time.Duration, defaultStrategyID string) *ContenderCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ContenderCache{client: client, ttl: ttl, defaultStrategyID: defaultStrategyID}
}

// Connect dials Redis and wraps it.
func Connect(addr string, db int, ttl time.Duration, defaultStrategyID string) *ContenderCache {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return New(client, ttl, defaultStrategyID)
}

// Publish atomically replaces the strategy's contender list. The value
// is a bare JSON array; each SET swaps the whole list so readers never
// observe a partial write. The default strategy also refreshes the
// unsuffixed fallback key.
func (c *ContenderCache) Publish(ctx context.Context, strategyID string, list []models.Candidate) error {
	if list == nil {
		list = []models.Candidate{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal contenders: %w", err)
	}

	if err := c.client.Set(ctx, StrategyKey(strategyID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", models.ErrCacheUnavailable, strategyID, err)
	}
	if strategyID == c.defaultStrategyID {
		if err := c.client.Set(ctx, keyPrefix, payload, c.ttl).Err(); err != nil {
			return fmt.Errorf("%w: publish fallback: %v", models.ErrCacheUnavailable, err)
		}
	}

	log.Info().Str("strategy", strategyID).Int("contenders", len(list)).Msg("contender list published")
	return nil
}

// Read returns the strategy's list, falling back to the unsuffixed key
// when the strategy key is absent. A missing list is (nil, false, nil).
func (c *ContenderCache) Read(ctx context.Context, strategyID string) ([]models.Candidate, bool, error) {
	for _, key := range []string{StrategyKey(strategyID), keyPrefix} {
		raw, err := c.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: read %s: %v", models.ErrCacheUnavailable, key, err)
		}

		var list []models.Candidate
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, false, fmt.Errorf("decode contenders %s: %w", key, err)
		}
		return list, true, nil
	}
	return nil, false, nil
}

// PublishStats stores the rejection-reason histogram next to the list;
// it feeds the X-Reason-Stats response header.
func (c *ContenderCache) PublishStats(ctx context.Context, strategyID string, stats map[string]int) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := c.client.Set(ctx, StrategyKey(strategyID)+statsSuffix, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: publish stats %s: %v", models.ErrCacheUnavailable, strategyID, err)
	}
	return nil
}

// ReadStats returns the histogram, empty when absent.
func (c *ContenderCache) ReadStats(ctx context.Context, strategyID string) (map[string]int, error) {
	raw, err := c.client.Get(ctx, StrategyKey(strategyID)+statsSuffix).Result()
	if err == redis.Nil {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read stats %s: %v", models.ErrCacheUnavailable, strategyID, err)
	}
	var stats map[string]int
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("decode stats %s: %w", strategyID, err)
	}
	return stats, nil
}

// Ping checks cache reachability for health reporting.
func (c *ContenderCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrCacheUnavailable, err)
	}
	return nil
}
