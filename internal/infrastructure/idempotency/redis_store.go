package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	lg     zerolog.Logger
}

func NewRedisStore(client redis.UniversalClient, lg zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "seatwatch:",
		lg:     lg.With().Str("component", "idem_store").Logger(),
	}
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("empty key")
	}
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.client.Set(ctx, s.prefix+key, "1", ttl).Err()
}

// MarkSentNX marks key only if absent and reports whether this call set it.
func (s *RedisStore) MarkSentNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("empty key")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
}
