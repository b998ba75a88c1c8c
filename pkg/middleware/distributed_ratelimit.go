package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements attempt limiting using Redis
// so limits are shared across multiple instances
type DistributedRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config RateLimitConfig, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config.withDefaults(),
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow implements Limiter with a fixed window. The counter and its expiry are
// created in the same MULTI, so a counter never outlives its window.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	var incr *redis.IntCmd
	_, err := rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, redisKey, 0, rl.config.Window)
		incr = pipe.Incr(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.Limit), nil
}

// Config implements Limiter
func (rl *DistributedRateLimiter) Config() RateLimitConfig {
	return rl.config
}

// Reset implements Resetter
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}
