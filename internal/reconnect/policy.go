package reconnect

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Errors
var (
	ErrExhausted = errors.New("reconnect: attempt budget exhausted")
)

// State is the lifecycle of the policy.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateConnecting
	StateExhausted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateConnecting:
		return "connecting"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Config controls backoff and the attempt budget.
type Config struct {
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Upper bound on any single delay
	MaxAttempts int           // Retries allowed before giving up
}

// DefaultConfig returns 1s base, 10s cap, 5 attempts.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		MaxAttempts: 5,
	}
}

// Observer receives policy transitions. Used for metrics.
type Observer interface {
	ReconnectScheduled(attempt int, delay time.Duration)
	ReconnectExhausted()
}

// Policy decides whether and when to retry a lost connection.
//
// At most one retry is pending at any time. Every call to OnDisconnect
// cancels the previous timer before scheduling a new one, and a fired timer
// whose generation is stale does nothing.
type Policy struct {
	cfg      Config
	clock    Clock
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	state   State
	attempt int
	timer   Timer
	gen     uint64
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces the timer source.
func WithClock(c Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithObserver attaches a transition observer.
func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// New creates a policy. Zero config fields fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	p := &Policy{
		cfg:    cfg,
		clock:  RealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.cfg.MaxDelay {
			break
		}
		d *= 2
	}
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	return d
}

// OnDisconnect schedules retry after the next backoff delay.
//
// Any pending timer is cancelled first. Once MaxAttempts retries have been
// scheduled without an intervening Reset, OnDisconnect logs, moves to
// StateExhausted and returns ErrExhausted.
func (p *Policy) OnDisconnect(reason error, retry func()) error {
	p.mu.Lock()
	p.stopTimerLocked()

	if p.attempt >= p.cfg.MaxAttempts {
		p.state = StateExhausted
		attempts := p.attempt
		p.mu.Unlock()

		p.logger.Error("reconnect attempts exhausted",
			"attempts", attempts,
			"reason", reason,
		)
		if p.observer != nil {
			p.observer.ReconnectExhausted()
		}
		return ErrExhausted
	}

	delay := p.Delay(p.attempt)
	p.attempt++
	attempt := p.attempt
	p.state = StateScheduled
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(delay, func() {
		p.fire(gen, retry)
	})
	p.mu.Unlock()

	p.logger.Info("reconnect scheduled",
		"attempt", attempt,
		"max_attempts", p.cfg.MaxAttempts,
		"delay", delay,
		"reason", reason,
	)
	if p.observer != nil {
		p.observer.ReconnectScheduled(attempt, delay)
	}
	return nil
}

func (p *Policy) fire(gen uint64, retry func()) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.state = StateConnecting
	p.mu.Unlock()

	retry()
}

// Reset clears the attempt counter and cancels any pending retry.
// Called after a successful session handshake and on explicit connects.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTimerLocked()
	p.attempt = 0
	p.state = StateIdle
}

// Cancel stops any pending retry without touching the attempt counter.
func (p *Policy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTimerLocked()
	if p.state != StateExhausted {
		p.state = StateIdle
	}
}

// Pending reports whether a retry timer is scheduled.
func (p *Policy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Attempt returns the number of retries scheduled since the last Reset.
func (p *Policy) Attempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempt
}

// State returns the current policy state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Exhausted reports whether the attempt budget is spent.
func (p *Policy) Exhausted() bool {
	return p.State() == StateExhausted
}

// stopTimerLocked cancels the pending timer and invalidates any callback
// already in flight. Caller holds p.mu.
func (p *Policy) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}
