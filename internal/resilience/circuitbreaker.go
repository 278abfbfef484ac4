// Package resilience provides the circuit breaker that gates every external
// provider call made by the voice runtime.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open) tracked per named resource (e.g. "stt:whisper",
// "tts:elevenlabs"). [Registry] creates breakers lazily on first use and keeps
// them for the process lifetime. Failure counters are only ever touched inside
// [CircuitBreaker.Execute]; callers never read or write the stats directly,
// which is what keeps the counters race-free.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sonus/internal/clockwork"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open, the retry deadline has not elapsed, and no fallback was supplied.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state — all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped. Calls use the fallback (or
	// fail with [ErrCircuitOpen]) until the retry deadline elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the retry deadline. Calls
	// are forwarded; enough successes close the breaker, any failure re-opens
	// it.
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
	// Name is the resource label used in log messages and metrics.
	Name string

	// FailureThreshold is the failure count at which the breaker opens.
	// Default: 4.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes required to close
	// the breaker. Default: 2.
	SuccessThreshold int

	// Timeout is how long the breaker stays open before allowing a probe.
	// Default: 45s.
	Timeout time.Duration

	// MonitoringWindow bounds how long a failure streak stays relevant: if the
	// previous failure is older than the window, the failure count restarts at
	// one instead of accumulating. Default: 3m.
	MonitoringWindow time.Duration

	// Clock supplies time for deadlines. Defaults to the wall clock.
	Clock clockwork.Clock

	// OnStateChange, when set, is invoked on every state transition with the
	// breaker name and the new state. It runs with the breaker's internal lock
	// held and must not call back into the breaker.
	OnStateChange func(name string, to State)
}

// Stats is a point-in-time snapshot of a breaker's counters.
type Stats struct {
	Name          string
	State         State
	FailureCount  int
	SuccessCount  int
	NextAttemptAt time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern with the
// counter model described above. It is safe for concurrent use.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	window           time.Duration
	clock            clockwork.Clock
	onStateChange    func(name string, to State)

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailure   time.Time
	nextAttemptAt time.Time
}

// New creates a [CircuitBreaker] with the supplied configuration. Zero-value
// config fields are replaced with sensible defaults.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 4
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MonitoringWindow <= 0 {
		cfg.MonitoringWindow = 3 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.Real{}
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		window:           cfg.MonitoringWindow,
		clock:            cfg.Clock,
		onStateChange:    cfg.OnStateChange,
		state:            StateClosed,
	}
}

// notify invokes the state-change hook. Must be called with cb.mu held.
func (cb *CircuitBreaker) notify(to State) {
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, to)
	}
}

// Execute runs fn if the breaker allows it.
//
// Closed: fn runs; success decrements the failure count (floor 0), failure
// increments it and opens the breaker at the threshold. Open: before the retry
// deadline the fallback runs instead (or [ErrCircuitOpen] is returned when
// fallback is nil); past the deadline the breaker moves to half-open and fn
// runs as a probe. Half-open: enough successes close the breaker and zero both
// counters, any failure re-opens it with a fresh deadline.
func (cb *CircuitBreaker) Execute(fn func() error, fallback func() error) error {
	cb.mu.Lock()
	now := cb.clock.Now()

	if cb.state == StateOpen {
		if now.Before(cb.nextAttemptAt) {
			cb.mu.Unlock()
			if fallback != nil {
				slog.Debug("circuit open, using fallback", "name", cb.name)
				return fallback()
			}
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.notify(StateHalfOpen)
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
	}

	inHalfOpen := cb.state == StateHalfOpen
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.recordFailure(inHalfOpen)
	} else {
		cb.recordSuccess(inHalfOpen)
	}
	return err
}

// recordFailure handles failure accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(inHalfOpen bool) {
	now := cb.clock.Now()

	if inHalfOpen {
		// Any failure in half-open immediately re-opens.
		cb.state = StateOpen
		cb.successCount = 0
		cb.nextAttemptAt = now.Add(cb.timeout)
		cb.lastFailure = now
		cb.notify(StateOpen)
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}

	// Failures outside the monitoring window no longer count as a streak.
	if !cb.lastFailure.IsZero() && now.Sub(cb.lastFailure) > cb.window {
		cb.failureCount = 0
	}
	cb.lastFailure = now

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.state = StateOpen
		cb.nextAttemptAt = now.Add(cb.timeout)
		cb.notify(StateOpen)
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"failure_count", cb.failureCount,
			"next_attempt_at", cb.nextAttemptAt)
	}
}

// recordSuccess handles success accounting. Must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.notify(StateClosed)
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}

	if cb.failureCount > 0 {
		cb.failureCount--
	}
}

// State returns the current [State] of the breaker. If the breaker is open and
// the retry deadline has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && !cb.clock.Now().Before(cb.nextAttemptAt) {
		return StateHalfOpen
	}
	return cb.state
}

// Snapshot returns a copy of the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:          cb.name,
		State:         cb.state,
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		NextAttemptAt: cb.nextAttemptAt,
	}
}

// Reset manually forces the breaker back to [StateClosed], zeroing both
// counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.notify(StateClosed)
	}
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.nextAttemptAt = time.Time{}
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
