package idempotency

import (
	"context"
	"time"
)

// Store remembers notifications that were already delivered, keyed by
// "notify:<request id>:<edge marker>".
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSent(ctx context.Context, key string, ttl time.Duration) error
}
