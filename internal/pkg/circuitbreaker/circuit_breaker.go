package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrOpen          = errors.New("circuit breaker is open")
	ErrHalfOpenLimit = errors.New("circuit breaker half-open limit reached")
)

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// TransitionFunc observes state changes. It runs with the breaker lock held and
// must not call back into the breaker.
type TransitionFunc func(from, to CircuitState)

// CircuitBreaker guards a flaky dependency (the headless browser) so that a broken
// Chrome install does not cost every request a full page timeout each sweep.
type CircuitBreaker struct {
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	now              func() time.Time
	onTransition     TransitionFunc

	mu            sync.RWMutex
	state         CircuitState
	failureCount  int
	openedAt      time.Time
	halfOpenCalls int
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if halfOpenMaxCalls <= 0 {
		halfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		now:              time.Now,
		state:            StateClosed,
	}
}

// OnTransition registers fn to be told about every state change.
func (cb *CircuitBreaker) OnTransition(fn TransitionFunc) *CircuitBreaker {
	cb.mu.Lock()
	cb.onTransition = fn
	cb.mu.Unlock()
	return cb
}

// Call executes fn with circuit breaker protection. Context cancellation is not
// counted as a dependency failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		cb.failureCount = 0
		cb.halfOpenCalls = 0
		cb.setState(StateClosed)
	case ctx.Err() != nil:
		if cb.state == StateHalfOpen && cb.halfOpenCalls > 0 {
			cb.halfOpenCalls--
		}
	default:
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.trip()
		}
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.halfOpenCalls = 0
		cb.setState(StateHalfOpen)
	}

	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrHalfOpenLimit
		}
		cb.halfOpenCalls++
	}
	return nil
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.halfOpenCalls = 0
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onTransition != nil {
		cb.onTransition(from, to)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}
