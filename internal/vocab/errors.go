package vocab

import "errors"

// Sentinel errors, matched with errors.Is by callers — never by string
// comparison.
var (
	// ErrInvalidInput is returned for malformed caller-supplied data.
	ErrInvalidInput = errors.New("vocab: invalid input")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("vocab: not found")

	// ErrConflict is returned when a uniqueness invariant would be violated,
	// e.g. starting a second active Lesson for a profile.
	ErrConflict = errors.New("vocab: conflict")

	// ErrTransientStore is returned after a transient Store error (connection
	// lost, lock timeout) has exhausted its retry budget.
	ErrTransientStore = errors.New("vocab: transient store error")

	// ErrCircuitOpen is returned by the LLM Gateway's circuit breaker
	// (internal/resilience) when it is short-circuiting calls after
	// repeated upstream failures, per spec §4.C3 (v) and the ErrCircuitOpen
	// kind enumerated in spec §7.
	ErrCircuitOpen = errors.New("vocab: circuit open")
)
