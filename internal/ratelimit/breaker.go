// Package ratelimit implements the per-source token bucket and circuit
// breaker, plus the cross-source "quiet period" coordination flag.
//
// No dependency in go.mod ships a circuit breaker, so this state machine
// is hand-rolled on top of stdlib sync primitives — see DESIGN.md for
// that justification. The token bucket itself reuses golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Transition is a structured record of one circuit breaker state change,
// emitted so callers can log or export it.
type Transition struct {
	Source string
	From   State
	To     State
	At     time.Time
	Reason string
}

// TransitionFunc receives every breaker state transition as it happens.
type TransitionFunc func(Transition)

// Breaker is a per-source circuit breaker. Zero value is not usable; use
// NewBreaker.
type Breaker struct {
	mu            sync.Mutex
	source        string
	state         State
	failK         int
	window        time.Duration
	cooldown      time.Duration
	failures      []time.Time // failure timestamps within the last `window`
	openedAt      time.Time
	onTransition  TransitionFunc
	now           func() time.Time
}

// BreakerConfig configures a new Breaker.
type BreakerConfig struct {
	Source       string
	FailK        int           // consecutive failures within Window before tripping OPEN, default 5
	Window       time.Duration // default 5 minutes
	Cooldown     time.Duration // default 60 seconds before OPEN -> HALF_OPEN
	OnTransition TransitionFunc
	Now          func() time.Time // overridable for tests; defaults to time.Now
}

// NewBreaker constructs a Breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailK <= 0 {
		cfg.FailK = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		source:       cfg.Source,
		state:        StateClosed,
		failK:        cfg.FailK,
		window:       cfg.Window,
		cooldown:     cfg.Cooldown,
		onTransition: cfg.OnTransition,
		now:          cfg.Now,
	}
}

// Allow reports whether a call to the source should proceed right now.
// CLOSED always allows. OPEN allows only after the cooldown elapses, at
// which point it transitions to HALF_OPEN and allows exactly one
// trial call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.transition(StateHalfOpen, "cooldown elapsed")
			return true
		}
		return false
	case StateHalfOpen:
		// Only one trial call is let through per cooldown period; further
		// Allow() calls while HALF_OPEN wait for the trial's outcome.
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker (from any state).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = nil
	if b.state != StateClosed {
		b.transition(StateClosed, "success")
	}
}

// RecordFailure registers a failed call. In CLOSED, it trips to OPEN once
// FailK failures have landed within Window. In HALF_OPEN, the trial call
// failed, so it trips back to OPEN immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == StateHalfOpen {
		b.openedAt = now
		b.transition(StateOpen, "trial call failed")
		return
	}

	b.failures = append(b.failures, now)
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept

	if b.state == StateClosed && len(b.failures) >= b.failK {
		b.openedAt = now
		b.transition(StateOpen, "consecutive failure threshold reached")
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State, reason string) {
	from := b.state
	b.state = to
	if b.onTransition != nil {
		b.onTransition(Transition{Source: b.source, From: from, To: to, At: b.now(), Reason: reason})
	}
}
