package idempotency

import (
	"context"
	"time"
)

type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) Seen(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (s *NoopStore) MarkSent(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}
