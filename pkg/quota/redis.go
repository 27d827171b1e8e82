package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablemind/tablemind/pkg/config"
)

// RedisAccountant stores monthly token counters under
// "quota:tokens:<user>:<YYYY-MM>" and optional per-user allowance overrides
// under "quota:limit:<user>".
type RedisAccountant struct {
	client *redis.Client
	cfg    *config.QuotaConfig
	now    func() time.Time
}

// NewRedisAccountant creates a Redis-backed quota accountant.
func NewRedisAccountant(client *redis.Client, cfg *config.QuotaConfig) *RedisAccountant {
	return &RedisAccountant{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (a *RedisAccountant) Check(ctx context.Context, userID string) (Status, error) {
	now := a.now()

	pipe := a.client.Pipeline()
	usedCmd := pipe.Get(ctx, usageKey(userID, now))
	limitCmd := pipe.Get(ctx, limitKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("quota check failed for %s: %w", userID, err)
	}

	used, err := counterValue(usedCmd)
	if err != nil {
		return Status{}, fmt.Errorf("quota usage for %s is corrupt: %w", userID, err)
	}
	limit, err := counterValue(limitCmd)
	if err != nil {
		return Status{}, fmt.Errorf("quota limit for %s is corrupt: %w", userID, err)
	}
	if limit == 0 {
		limit = a.cfg.DefaultTokenLimit
	}

	return statusFor(used, limit, periodEnd(now)), nil
}

func (a *RedisAccountant) Record(ctx context.Context, userID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	now := a.now()
	key := usageKey(userID, now)

	pipe := a.client.TxPipeline()
	pipe.IncrBy(ctx, key, tokens)
	// The counter is only meaningful during its own month; keep it a day
	// past rollover for inspection, then let it vanish.
	pipe.ExpireAt(ctx, key, periodEnd(now).Add(24*time.Hour))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("quota record failed for %s: %w", userID, err)
	}
	return nil
}

// counterValue reads an integer counter, treating a missing key as zero.
func counterValue(cmd *redis.StringCmd) (int64, error) {
	raw, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}
