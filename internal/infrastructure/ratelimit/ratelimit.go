package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Limiter caps how many seat notifications one user receives per window.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// RedisLimiter is a fixed-window counter: INCR, EXPIRE on the first hit.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	lg     zerolog.Logger
}

func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, lg zerolog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		lg:     lg.With().Str("component", "notify_ratelimit").Logger(),
	}
}

// Allow fails open: a Redis outage must not silence notifications.
func (rl *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if rl.client == nil || rl.limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("seatwatch:ratelimit:notify:%s", userID)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		rl.lg.Warn().Err(err).Str("user_id", userID).Msg("rate limit check failed, allowing")
		return true, err
	}

	if count == 1 {
		rl.client.Expire(ctx, key, rl.window)
	}

	return count <= int64(rl.limit), nil
}

type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }
