package fiatrate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const redisKey = "arbengine:fiatrate:usdkrw"

// RedisCache is an optional cross-process backing store for the
// last-good rate: a nil client disables it cleanly rather than requiring
// callers to branch.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns nil when client is nil, so Redis support stays
// optional.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

type cachedRate struct {
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Get returns the cached rate, if present and unexpired.
func (c *RedisCache) Get(ctx context.Context) (Rate, bool) {
	if c == nil || c.client == nil {
		return Rate{}, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(cacheCtx, redisKey).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("fiatrate redis cache lookup failed")
		}
		return Rate{}, false
	}
	var cr cachedRate
	if err := json.Unmarshal([]byte(raw), &cr); err != nil {
		log.Warn().Err(err).Msg("fiatrate redis cache entry corrupt")
		return Rate{}, false
	}
	value, err := decimal.NewFromString(cr.Value)
	if err != nil {
		return Rate{}, false
	}
	return Rate{Value: value, Timestamp: cr.Timestamp}, true
}

// Set stores rate asynchronously so a slow/unavailable Redis never blocks
// the premium calculation path.
func (c *RedisCache) Set(rate Rate) {
	if c == nil || c.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(cachedRate{Value: rate.Value.String(), Timestamp: rate.Timestamp})
		if err != nil {
			return
		}
		if err := c.client.Set(ctx, redisKey, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to cache fiat rate in redis")
		}
	}()
}
