package notify

import (
	"context"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/rs/zerolog"
)

type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// Fanout delivers to the primary sink and mirrors to secondary sinks. Only the
// primary's error is reported; a secondary failure never re-arms a notification.
type Fanout struct {
	primary   Sender
	secondary []Sender
	lg        zerolog.Logger
}

func NewFanout(primary Sender, lg zerolog.Logger, secondary ...Sender) *Fanout {
	return &Fanout{
		primary:   primary,
		secondary: secondary,
		lg:        lg.With().Str("component", "notify_fanout").Logger(),
	}
}

func (f *Fanout) Send(ctx context.Context, n domain.Notification) error {
	if err := f.primary.Send(ctx, n); err != nil {
		return err
	}
	for _, s := range f.secondary {
		if err := s.Send(ctx, n); err != nil {
			f.lg.Warn().Err(err).Str("request_id", n.Request.ID).Msg("secondary sink failed")
		}
	}
	return nil
}
