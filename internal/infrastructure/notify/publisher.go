package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	DefaultExchange = "seatwatch.events"

	RoutingSeatAvailable = "seat.available"

	// Wait window for Return / Confirm
	publishWait = 150 * time.Millisecond
)

// SeatAvailableEvent is the body published for every delivered notification.
type SeatAvailableEvent struct {
	RequestID  string    `json:"request_id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ChannelID  string    `json:"channel_id"`
	Term       string    `json:"term"`
	Subject    string    `json:"class_subject,omitempty"`
	CatalogNum string    `json:"class_num,omitempty"`
	CourseID   string    `json:"course_id,omitempty"`
	SeatsOpen  int       `json:"seats_open"`
	Section    string    `json:"section,omitempty"`
	Title      string    `json:"title,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newSeatAvailableEvent(n domain.Notification, now time.Time) SeatAvailableEvent {
	r := n.Request
	return SeatAvailableEvent{
		RequestID:  r.ID,
		Type:       string(r.Kind),
		UserID:     n.UserID,
		ChannelID:  n.ChannelID,
		Term:       r.Term,
		Subject:    r.Subject,
		CatalogNum: r.CatalogNumber,
		CourseID:   r.CourseID,
		SeatsOpen:  n.Result.SeatsOpen,
		Section:    n.Result.SectionLabel,
		Title:      n.Result.Title,
		OccurredAt: now.UTC(),
	}
}

// Publisher emits seat.available events to a topic exchange with publisher confirms,
// so other consumers (mail, push, analytics) can react to the same edge.
type Publisher struct {
	url      string
	exchange string
	lg       zerolog.Logger

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange string, lg zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	p := &Publisher{
		url:      url,
		exchange: exchange,
		lg:       lg.With().Str("component", "amqp_publisher").Logger(),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// Send makes the publisher usable as a secondary notification sink.
func (p *Publisher) Send(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(newSeatAvailableEvent(n, time.Now()))
	if err != nil {
		return err
	}
	return p.PublishEvent(ctx, RoutingSeatAvailable, uuid.NewString(), body)
}

// PublishEvent publishes a JSON body to the topic exchange. Unroutable messages are
// not an error: nobody may be subscribed yet.
func (p *Publisher) PublishEvent(ctx context.Context, routingKey, messageID string, body []byte) error {
	if routingKey == "" {
		return errors.New("missing routingKey")
	}
	if messageID == "" {
		return errors.New("missing messageID")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if p.conn != nil {
			_ = p.conn.Close()
		}
		if err := p.connect(); err != nil {
			return fmt.Errorf("publisher reconnect: %w", err)
		}
	}

	err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:   messageID,
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	t := time.NewTimer(publishWait)
	defer t.Stop()

	// Wait for either Return (NO_ROUTE) or Confirm
	select {
	case ret := <-p.returnCh:
		p.lg.Debug().Str("routing_key", ret.RoutingKey).Msg("event unroutable, no subscribers")
		// the confirm for a returned message still follows
		select {
		case <-p.confirmCh:
		case <-t.C:
		}
		return nil
	case conf := <-p.confirmCh:
		if !conf.Ack {
			return errors.New("publish nack")
		}
		return nil
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
