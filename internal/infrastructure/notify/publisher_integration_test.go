package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
	}
	rabbitC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rabbitC.Terminate(ctx) })

	host, err := rabbitC.Host(ctx)
	require.NoError(t, err)
	port, err := rabbitC.MappedPort(ctx, "5672")
	require.NoError(t, err)
	url := "amqp://guest:guest@" + host + ":" + port.Port()

	p, err := NewPublisher(url, "seatwatch.test", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	t.Run("unroutable_is_not_an_error", func(t *testing.T) {
		assert.NoError(t, p.Send(ctx, sampleNotification()))
	})

	t.Run("bound_queue_receives_event", func(t *testing.T) {
		conn, err := amqp.Dial(url)
		require.NoError(t, err)
		defer conn.Close()
		ch, err := conn.Channel()
		require.NoError(t, err)
		defer ch.Close()

		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		require.NoError(t, err)
		require.NoError(t, ch.QueueBind(q.Name, "seat.#", "seatwatch.test", false, nil))
		msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
		require.NoError(t, err)

		require.NoError(t, p.Send(ctx, sampleNotification()))

		select {
		case m := <-msgs:
			var ev SeatAvailableEvent
			require.NoError(t, json.Unmarshal(m.Body, &ev))
			assert.Equal(t, RoutingSeatAvailable, m.RoutingKey)
			assert.Equal(t, 3, ev.SeatsOpen)
			assert.NotEmpty(t, m.MessageId)
		case <-time.After(10 * time.Second):
			t.Fatal("event not delivered")
		}
	})
}
