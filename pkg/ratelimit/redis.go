package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tablemind/tablemind/pkg/config"
)

// RedisLimiter keeps one sorted set per (endpoint, client key); members are
// request markers scored by arrival time in milliseconds. Trimming expired
// members and counting the rest yields the sliding-window total.
type RedisLimiter struct {
	client *redis.Client
	cfg    *config.RateLimitConfig
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed sliding-window limiter.
func NewRedisLimiter(client *redis.Client, cfg *config.RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Check(ctx context.Context, endpoint, clientKey string) (Decision, error) {
	limit := l.cfg.EndpointLimit(endpoint)
	if limit <= 0 {
		// Endpoint is not rate limited.
		return Decision{Allowed: true}, nil
	}

	key := windowKey(endpoint, clientKey)
	now := l.now()
	windowStart := now.Add(-l.cfg.Window).UnixMilli()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed for %s: %w", key, err)
	}

	count := int(countCmd.Val())
	decision := Decision{
		Limit:   limit,
		ResetIn: l.resetIn(now, oldestCmd.Val()),
	}

	if count >= limit {
		return decision, nil
	}

	// Record this request. The marker must be unique; concurrent requests
	// in the same millisecond would otherwise collapse into one member.
	member := strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()
	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.Expire(ctx, key, l.cfg.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit record failed for %s: %w", key, err)
	}

	decision.Allowed = true
	decision.Remaining = limit - count - 1
	if count == 0 {
		// This request is now the oldest entry.
		decision.ResetIn = l.cfg.Window
	}
	return decision, nil
}

// resetIn computes how long until the oldest in-window entry expires.
func (l *RedisLimiter) resetIn(now time.Time, oldest []redis.Z) time.Duration {
	if len(oldest) == 0 {
		return 0
	}
	oldestAt := time.UnixMilli(int64(oldest[0].Score))
	reset := oldestAt.Add(l.cfg.Window).Sub(now)
	if reset < 0 {
		return 0
	}
	return reset
}
