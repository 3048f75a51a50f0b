// Package resilience implements the single circuit breaker the LLM Gateway
// needs to stop hammering a failing model backend (spec §4.C3 (v)): a
// closed → open → half-open state machine gated by one probe call, not a
// generic multi-provider failover toolkit. internal/llmgateway is the only
// caller; there is exactly one breaker per [llmgateway.Gateway].
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vocatutor/vocatutor/internal/vocab"
)

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state — all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive
	// failures. Calls are rejected immediately with [vocab.ErrCircuitOpen]
	// until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout.
	// Exactly one call is allowed through; success closes the breaker,
	// failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name is a human-readable label used in log messages (e.g.
	// "llmgateway").
	Name string

	// MaxFailures is the number of consecutive failures in the closed
	// state before the breaker opens. Default 5 (spec §4.C3 (v)).
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before admitting a
	// single half-open probe. Default 60s (spec §4.C3 (v)).
	ResetTimeout time.Duration

	// OnStateChange, when set, is invoked synchronously under the
	// breaker's lock every time its state changes. internal/llmgateway
	// uses it to mirror breaker state into observe.Metrics.CircuitState.
	OnStateChange func(State)
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// CircuitBreaker implements the three-state breaker spec §4.C3 (v)
// describes for the LLM Gateway. It is safe for concurrent use from
// multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	onChange     func(State)

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	probing         bool
}

// New creates a [CircuitBreaker] with the supplied configuration. Zero-value
// config fields are replaced with the spec's defaults.
func New(cfg Config) *CircuitBreaker {
	cfg = cfg.withDefaults()
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		onChange:     cfg.OnStateChange,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [vocab.ErrCircuitOpen] without calling fn, until the reset timeout has
// elapsed; then exactly one caller is admitted as the half-open probe while
// every other concurrent caller still sees [vocab.ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return vocab.ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return vocab.ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	return err
}

// recordFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure() {
	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		slog.Warn("circuit breaker re-opened from half-open probe", "name", cb.name)
		cb.setState(StateOpen)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.consecutiveFail)
		cb.setState(StateOpen)
	}
}

// recordSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == StateHalfOpen {
		slog.Info("circuit breaker closed after successful probe", "name", cb.name)
		cb.setState(StateClosed)
		return
	}
	cb.consecutiveFail = 0
}

// setState transitions to s and fires OnStateChange. Must be called with
// cb.mu held; a no-op if s equals the current state.
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	if s == StateClosed {
		cb.consecutiveFail = 0
	}
	if cb.onChange != nil {
		cb.onChange(s)
	}
}

// State returns the current [State] of the breaker. If the breaker is open
// and the reset timeout has elapsed, the returned state is [StateHalfOpen]
// (the actual transition, and admitting the probe call, happens on the next
// [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure accounting. Used by tests and by an operator-triggered recovery
// command; production code paths never need to call it.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	cb.setState(StateClosed)
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
