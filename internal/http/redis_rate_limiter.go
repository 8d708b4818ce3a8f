package httpx

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "metrics_api:ratelimit:"
	redisDialTimeout = 2 * time.Second
	redisOpTimeout   = 250 * time.Millisecond
)

type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis so rate-limit counters are shared
// across replicas of the metrics API. The connection is verified up front;
// callers fall back to the in-process limiter when that fails.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if logger != nil {
		logger = logger.With("component", "redis_rate_limiter")
	}
	return &redisRateLimiter{client: client, logger: logger}, nil
}

// Allow counts the request against a fixed window kept in Redis. The
// increment, window start, and remaining TTL travel in one pipeline so a
// burst of requests costs one round trip each. Redis failures fail open:
// throttling protects the dashboard endpoints, it is not an availability
// dependency.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	pipe := rl.client.TxPipeline()
	counter := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.failOpen(key, err)
		return rateDecision{allowed: true}
	}

	count := int(counter.Val())
	windowLeft := ttl.Val()
	if windowLeft <= 0 {
		windowLeft = window
	}
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: time.Now().Add(windowLeft),
	}
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}

func (rl *redisRateLimiter) failOpen(key string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("rate limit check failed, allowing request", "key", key, "error", err)
}
