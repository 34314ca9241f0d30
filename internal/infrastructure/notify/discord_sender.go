package notify

import (
	"context"
	"fmt"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// messageSender is the slice of *discordgo.Session the sender needs.
type messageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender posts notifications into the channel the request was created from,
// mentioning its owner.
type DiscordSender struct {
	session messageSender
	lg      zerolog.Logger
}

func NewDiscordSender(session messageSender, lg zerolog.Logger) *DiscordSender {
	return &DiscordSender{
		session: session,
		lg:      lg.With().Str("component", "discord_sender").Logger(),
	}
}

func (s *DiscordSender) Send(ctx context.Context, n domain.Notification) error {
	if n.ChannelID == "" {
		return fmt.Errorf("notification for request %s has no channel", n.Request.ID)
	}

	msg := &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s> %s", n.UserID, n.Text),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{n.UserID},
		},
	}
	if _, err := s.session.ChannelMessageSendComplex(n.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send to channel %s: %w", n.ChannelID, err)
	}

	s.lg.Debug().Str("channel_id", n.ChannelID).Str("user_id", n.UserID).Msg("notification delivered")
	return nil
}
