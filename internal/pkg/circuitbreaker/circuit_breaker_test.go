package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBrowser = errors.New("chrome crashed")

func fail(context.Context) error { return errBrowser }
func ok(context.Context) error   { return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, time.Minute, 1)
	cb.now = clk.now
	return cb, clk
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(context.Background(), fail), errBrowser)
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Call(context.Background(), fail), errBrowser)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb, clk := newTestBreaker(1)
	_ = cb.Call(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	clk.t = clk.t.Add(2 * time.Minute)

	assert.NoError(t, cb.Call(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(1)
	_ = cb.Call(context.Background(), fail)

	clk.t = clk.t.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Call(context.Background(), fail), errBrowser)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Call(context.Background(), ok), ErrOpen)
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.FailureCount())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}

func TestCircuitBreaker_OnTransition(t *testing.T) {
	cb, clk := newTestBreaker(1)
	var seen []string
	cb.OnTransition(func(from, to CircuitState) {
		seen = append(seen, from.String()+">"+to.String())
	})

	_ = cb.Call(context.Background(), fail)
	_ = cb.Call(context.Background(), ok) // rejected while open, no transition
	clk.t = clk.t.Add(2 * time.Minute)
	_ = cb.Call(context.Background(), ok)

	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, seen)
}
