package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	appctx "github.com/baechuer/seatwatch/internal/pkg/context"
)

// commandTimeout bounds one interaction, including the upstream lookup on add.
const commandTimeout = 60 * time.Second

// Bot wires the command Handler to a Discord gateway session.
type Bot struct {
	session     *discordgo.Session
	handler     *Handler
	appID       string
	defaultTerm string
	lg          zerolog.Logger

	removeHandler func()
}

func NewBot(session *discordgo.Session, handler *Handler, appID, defaultTerm string, lg zerolog.Logger) *Bot {
	return &Bot{
		session:     session,
		handler:     handler,
		appID:       appID,
		defaultTerm: defaultTerm,
		lg:          lg.With().Str("component", "discord_bot").Logger(),
	}
}

// Start opens the gateway, registers the slash commands and blocks until ctx ends.
func (b *Bot) Start(ctx context.Context) error {
	b.removeHandler = b.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		b.onInteraction(ctx, s, ic)
	})
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.lg.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord gateway ready")
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}

	appID := b.appID
	if appID == "" && b.session.State != nil && b.session.State.User != nil {
		appID = b.session.State.User.ID
	}
	cmds, err := b.session.ApplicationCommandBulkOverwrite(appID, "", applicationCommands(b.defaultTerm), discordgo.WithContext(ctx))
	if err != nil {
		_ = b.session.Close()
		return fmt.Errorf("register slash commands: %w", err)
	}
	b.lg.Info().Int("commands", len(cmds)).Msg("slash commands registered")

	<-ctx.Done()
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.removeHandler != nil {
		b.removeHandler()
	}
	b.lg.Info().Msg("discord gateway closing")
	return b.session.Close()
}

// Guilds reports how many servers the bot is in.
func (b *Bot) Guilds() int {
	if b.session.State == nil {
		return 0
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return len(b.session.State.Guilds)
}

func (b *Bot) onInteraction(parent context.Context, s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	cmd := commandFromInteraction(ic)

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	ctx = appctx.WithUserID(ctx, cmd.UserID)

	lg := b.lg.With().Str("command", cmd.Name).Str("user_id", cmd.UserID).Logger()
	lg.Debug().Msg("slash command received")

	if deferred[cmd.Name] {
		err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}, discordgo.WithContext(ctx))
		if err != nil {
			lg.Error().Err(err).Msg("defer interaction failed")
			return
		}
		reply := b.handler.Handle(ctx, cmd)
		_, err = s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
			Content:         reply.Content,
			Embeds:          reply.Embeds,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}, discordgo.WithContext(ctx))
		if err != nil {
			lg.Error().Err(err).Msg("followup failed")
		}
		return
	}

	reply := b.handler.Handle(ctx, cmd)
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         reply.Content,
			Embeds:          reply.Embeds,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		lg.Error().Err(err).Msg("interaction respond failed")
	}
}

// commandFromInteraction flattens a gateway interaction into a Command.
func commandFromInteraction(ic *discordgo.InteractionCreate) Command {
	data := ic.ApplicationCommandData()
	cmd := Command{
		Name:      data.Name,
		ChannelID: ic.ChannelID,
		Strings:   map[string]string{},
		Ints:      map[string]int64{},
	}

	user := ic.User
	if ic.Member != nil && ic.Member.User != nil {
		user = ic.Member.User
	}
	if user != nil {
		cmd.UserID = user.ID
		cmd.Username = user.Username
		if user.GlobalName != "" {
			cmd.Username = user.GlobalName
		}
	}

	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			cmd.Strings[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			cmd.Ints[opt.Name] = opt.IntValue()
		}
	}
	return cmd
}
