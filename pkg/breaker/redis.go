package breaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps one sorted set per tenant, scored by execution time in
// milliseconds, trimmed to the window on every record.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "autoflow:breaker:"
	}

	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(tenantID string) string {
	return c.prefix + tenantID
}

func (c *RedisCounter) Record(ctx context.Context, tenantID, member string, now time.Time, window time.Duration) (int, error) {
	key := c.key(tenantID)

	pipe := c.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to record execution for tenant %s: %w", tenantID, err)
	}

	return int(card.Val()), nil
}

func (c *RedisCounter) Forget(ctx context.Context, tenantID, member string) error {
	err := c.client.ZRem(ctx, c.key(tenantID), member).Err()
	if err != nil {
		return fmt.Errorf("failed to forget execution for tenant %s: %w", tenantID, err)
	}

	return nil
}
