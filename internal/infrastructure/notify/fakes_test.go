package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/bwmarrin/discordgo"
)

type fakeSession struct {
	mu       sync.Mutex
	channels []string
	sent     []*discordgo.MessageSend
	err      error
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.channels = append(f.channels, channelID)
	f.sent = append(f.sent, data)
	return &discordgo.Message{ChannelID: channelID, Content: data.Content}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	got  []domain.Notification
	fail bool
}

func (f *fakeSender) Send(ctx context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.got = append(f.got, n)
	return nil
}
