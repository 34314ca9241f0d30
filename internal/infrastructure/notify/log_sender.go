package notify

import (
	"context"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/rs/zerolog"
)

// LogSender is the development sink: it only logs what would be sent.
type LogSender struct {
	lg zerolog.Logger
}

func NewLogSender(lg zerolog.Logger) *LogSender {
	return &LogSender{lg: lg.With().Str("component", "log_sender").Logger()}
}

func (s *LogSender) Send(ctx context.Context, n domain.Notification) error {
	s.lg.Info().
		Str("channel_id", n.ChannelID).
		Str("user_id", n.UserID).
		Str("request_id", n.Request.ID).
		Int("seats_open", n.Result.SeatsOpen).
		Str("text", n.Text).
		Msg("FAKE send seat notification")
	return nil
}
