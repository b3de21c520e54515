package pos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a sliding one-minute window per terminal, backed by a
// redis sorted set scored by submission time.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a limiter allowing limit requests per minute.
func NewRateLimiter(client *redis.Client, limit int) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: time.Minute}
}

// Allow records one request for the terminal and reports whether it fits the
// window. A redis failure fails open; the global IP limiter still applies.
func (l *RateLimiter) Allow(ctx context.Context, terminalID string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	now := time.Now()
	key := "pos:ratelimit:" + terminalID
	cutoff := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, key)
	// Members carry a uuid suffix so submissions landing on the same
	// nanosecond still count separately.
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
	})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("pos: rate limit check: %w", err)
	}

	return count.Val() < int64(l.limit), nil
}
