// Package resilience provides reliability patterns for calls to the
// generative-text collaborator and other upstream services.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls until
// timeout elapses. In half-open state a single probe call is let through.
//
// Cancellation of the caller's own context is not counted as a failure: a
// client that gave up says nothing about upstream health.
type Breaker struct {
	mu          sync.Mutex
	state       State
	probing     bool
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
	onChange    func(from, to State)
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// SetOnStateChange registers fn to be called after every transition. fn runs
// outside the breaker lock and must not block.
func (b *Breaker) SetOnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

type transition struct {
	from, to State
}

func (b *Breaker) notify(ts ...transition) {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	if fn == nil {
		return
	}
	for _, t := range ts {
		if t.from != t.to {
			fn(t.from, t.to)
		}
	}
}

// Execute runs fn if the circuit allows it. Returns ErrCircuitOpen otherwise.
func (b *Breaker) Execute(fn func() error) error {
	probe, ok, entered := b.allowRequest()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	if probe {
		b.probing = false
	}
	from := b.state
	switch {
	case err == nil:
		b.failures = 0
		b.state = StateClosed
	case errors.Is(err, context.Canceled):
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	after := transition{from: from, to: b.state}
	b.mu.Unlock()

	b.notify(entered, after)
	return err
}

// State reports the current state, resolving an expired open state to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return StateHalfOpen
	}
	return b.state
}

// allowRequest reports whether a call may proceed and whether it is the
// half-open probe. entered records an open to half-open move.
func (b *Breaker) allowRequest() (probe, ok bool, entered transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entered = transition{from: b.state, to: b.state}

	switch b.state {
	case StateClosed:
		return false, true, entered
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return false, false, entered
		}
		b.state = StateHalfOpen
		entered.to = StateHalfOpen
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return false, false, entered
		}
		b.probing = true
		return true, true, entered
	}
	return false, false, entered
}
