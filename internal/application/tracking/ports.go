package tracking

import (
	"context"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
)

// Fetcher checks one request upstream. Check never returns an error: failures are
// FetchResult values.
type Fetcher interface {
	Kind() domain.Kind
	Check(ctx context.Context, req domain.TrackingRequest) domain.FetchResult
}

// Describer is implemented by fetchers that can look up display metadata at creation.
type Describer interface {
	Describe(ctx context.Context, req domain.TrackingRequest) (domain.Details, error)
}

type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

type IdempotencyStore interface {
	// Seen returns true if key already marked as sent.
	Seen(ctx context.Context, key string) (bool, error)

	// MarkSent marks key as sent with TTL (idempotent).
	MarkSent(ctx context.Context, key string, ttl time.Duration) error
}

type RateLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

type Store interface {
	Load() (domain.RequestSet, error)
	Save(set domain.RequestSet) error
}

// Fetchers dispatches by request kind; a new upstream source is one more entry.
type Fetchers map[domain.Kind]Fetcher

func NewFetchers(fs ...Fetcher) Fetchers {
	out := make(Fetchers, len(fs))
	for _, f := range fs {
		out[f.Kind()] = f
	}
	return out
}
