package failure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sonus/internal/clockwork"
)

// Strategy names a typed recovery action.
type Strategy string

const (
	// StrategyRestartService re-initialises the providers and session plumbing.
	StrategyRestartService Strategy = "restart-service"

	// StrategyReinitializeAudio tears down and reopens the capture stream.
	StrategyReinitializeAudio Strategy = "reinitialize-audio"

	// StrategySwitchProvider advances to the next provider in the registry's
	// ordered list.
	StrategySwitchProvider Strategy = "switch-provider"

	// StrategyRequestPermissions surfaces a permission prompt to the user.
	// No automated action is taken.
	StrategyRequestPermissions Strategy = "request-permissions"

	// StrategyExponentialBackoff waits min(base·2^attempts, cap) and reports
	// success so the next turn retries naturally.
	StrategyExponentialBackoff Strategy = "exponential-backoff"

	// StrategyFallbackMode degrades features: continuous listening is disabled
	// and the session falls back to push-to-talk turns.
	StrategyFallbackMode Strategy = "fallback-mode"
)

// Plan is the static recovery configuration for one failure type.
type Plan struct {
	Strategy    Strategy
	Delay       time.Duration
	MaxAttempts int
	Fallbacks   []Strategy
}

// DefaultPlans maps every recoverable failure type to its plan. Read-only at
// runtime.
var DefaultPlans = map[Type]Plan{
	TypeMicrophoneAccess:   {Strategy: StrategyReinitializeAudio, Delay: 500 * time.Millisecond, MaxAttempts: 3, Fallbacks: []Strategy{StrategyRequestPermissions}},
	TypeAudioContext:       {Strategy: StrategyReinitializeAudio, Delay: 250 * time.Millisecond, MaxAttempts: 3, Fallbacks: []Strategy{StrategyRestartService}},
	TypeMediaRecorder:      {Strategy: StrategyReinitializeAudio, Delay: 250 * time.Millisecond, MaxAttempts: 3, Fallbacks: []Strategy{StrategyRestartService, StrategyFallbackMode}},
	TypeNetworkError:       {Strategy: StrategyExponentialBackoff, Delay: time.Second, MaxAttempts: 5, Fallbacks: []Strategy{StrategySwitchProvider, StrategyFallbackMode}},
	TypeAPIError:           {Strategy: StrategySwitchProvider, Delay: 0, MaxAttempts: 3, Fallbacks: []Strategy{StrategyExponentialBackoff, StrategyFallbackMode}},
	TypeTranscriptionError: {Strategy: StrategySwitchProvider, Delay: 0, MaxAttempts: 3, Fallbacks: []Strategy{StrategyExponentialBackoff}},
	TypeTTSError:           {Strategy: StrategySwitchProvider, Delay: 0, MaxAttempts: 3, Fallbacks: []Strategy{StrategyExponentialBackoff}},
	TypeResourceExhausted:  {Strategy: StrategyExponentialBackoff, Delay: 2 * time.Second, MaxAttempts: 4, Fallbacks: []Strategy{StrategySwitchProvider}},
	TypeTimeout:            {Strategy: StrategyExponentialBackoff, Delay: time.Second, MaxAttempts: 4, Fallbacks: []Strategy{StrategySwitchProvider}},
	TypeUnknown:            {Strategy: StrategyRestartService, Delay: time.Second, MaxAttempts: 2, Fallbacks: []Strategy{StrategyFallbackMode}},
}

// Actions is implemented by the session container; each method applies one
// strategy's effect. Methods must be safe to call from the planner goroutine.
type Actions interface {
	RestartService(ctx context.Context) error
	ReinitializeAudio(ctx context.Context) error
	SwitchProvider(ctx context.Context, stage string) error
	RequestPermissions(ctx context.Context) error
	EnterFallbackMode(ctx context.Context) error
}

// Sentinel errors returned by [Planner.Recover].
var (
	// ErrRecoveryInProgress means another recovery is already running; the
	// second failure is not recovered (single-flight).
	ErrRecoveryInProgress = errors.New("recovery already in progress")

	// ErrNotRecoverable means the failure type requires user action and no
	// automated recovery is attempted.
	ErrNotRecoverable = errors.New("failure is not automatically recoverable")

	// ErrTooManyFailures means the anti-flapping guard tripped: the same type
	// failed too often inside the guard window.
	ErrTooManyFailures = errors.New("too many recent failures of this type")

	// ErrStrategiesExhausted means the plan's primary strategy and all its
	// fallbacks failed.
	ErrStrategiesExhausted = errors.New("all recovery strategies exhausted")
)

const (
	// historyLimit bounds the per-type failure ring.
	historyLimit = 10

	// flapThreshold failures of one type inside flapWindow suppress recovery.
	flapThreshold = 5
	flapWindow    = 5 * time.Minute

	// backoffCap bounds the exponential backoff delay.
	backoffCap = 30 * time.Second
)

// PlannerConfig configures a [Planner].
type PlannerConfig struct {
	// Actions receives the strategy callbacks. Required.
	Actions Actions

	// Plans overrides [DefaultPlans]; nil uses the defaults.
	Plans map[Type]Plan

	// Clock supplies time for delays and the guard windows. Defaults to the
	// wall clock.
	Clock clockwork.Clock
}

// Planner executes bounded, typed recovery for classified failures.
// It is safe for concurrent use; only one recovery runs at a time.
type Planner struct {
	actions Actions
	plans   map[Type]Plan
	clock   clockwork.Clock

	mu         sync.Mutex
	inProgress bool
	history    map[Type][]Context
	attempts   map[Type]int
}

// NewPlanner creates a Planner. Panics if cfg.Actions is nil — there is no
// meaningful recovery without an action surface.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Actions == nil {
		panic("failure: PlannerConfig.Actions is required")
	}
	if cfg.Plans == nil {
		cfg.Plans = DefaultPlans
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.Real{}
	}
	return &Planner{
		actions:  cfg.Actions,
		plans:    cfg.Plans,
		clock:    cfg.Clock,
		history:  make(map[Type][]Context),
		attempts: make(map[Type]int),
	}
}

// InProgress reports whether a recovery is currently running.
func (p *Planner) InProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inProgress
}

// History returns a copy of the failure ring for the given type.
func (p *Planner) History(t Type) []Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Context, len(p.history[t]))
	copy(out, p.history[t])
	return out
}

// Recover records the failure and, when permitted, executes the type's plan:
// the primary strategy first, then each fallback in order. It returns nil when
// any strategy succeeded and a sentinel error otherwise.
//
// Recovery is refused — with the matching sentinel — when the type is fatal,
// when another recovery is in flight, or when the anti-flapping guard trips.
func (p *Planner) Recover(ctx context.Context, fc Context) error {
	if fc.Timestamp.IsZero() {
		fc.Timestamp = p.clock.Now()
	}

	p.mu.Lock()
	p.record(fc)

	if fc.Type.Fatal() {
		p.mu.Unlock()
		slog.Warn("failure requires user action, skipping recovery",
			"type", string(fc.Type), "err", fc.Err)
		return fmt.Errorf("%w: %s", ErrNotRecoverable, fc.Type)
	}
	if p.inProgress {
		p.mu.Unlock()
		return ErrRecoveryInProgress
	}
	if p.recentFailures(fc.Type) >= flapThreshold {
		p.mu.Unlock()
		slog.Warn("anti-flapping guard tripped, skipping recovery",
			"type", string(fc.Type))
		return fmt.Errorf("%w: %s", ErrTooManyFailures, fc.Type)
	}

	plan, ok := p.plans[fc.Type]
	if !ok {
		plan = p.plans[TypeUnknown]
	}
	attempts := p.attempts[fc.Type]
	if plan.MaxAttempts > 0 && attempts >= plan.MaxAttempts {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s attempts exceeded", ErrStrategiesExhausted, fc.Type)
	}
	p.attempts[fc.Type] = attempts + 1
	p.inProgress = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inProgress = false
		p.mu.Unlock()
	}()

	strategies := append([]Strategy{plan.Strategy}, plan.Fallbacks...)
	var lastErr error
	for _, s := range strategies {
		if err := p.wait(ctx, p.delayFor(s, plan, attempts)); err != nil {
			return err
		}
		slog.Info("executing recovery strategy",
			"type", string(fc.Type), "strategy", string(s), "attempt", attempts+1)
		if err := p.apply(ctx, s, fc); err != nil {
			slog.Warn("recovery strategy failed",
				"strategy", string(s), "err", err)
			lastErr = err
			continue
		}
		p.mu.Lock()
		p.attempts[fc.Type] = 0
		p.mu.Unlock()
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStrategiesExhausted, lastErr)
}

// record appends to the bounded per-type ring. Must hold p.mu.
func (p *Planner) record(fc Context) {
	ring := append(p.history[fc.Type], fc)
	if len(ring) > historyLimit {
		ring = ring[len(ring)-historyLimit:]
	}
	p.history[fc.Type] = ring
}

// recentFailures counts ring entries inside the guard window. Must hold p.mu.
func (p *Planner) recentFailures(t Type) int {
	cutoff := p.clock.Now().Add(-flapWindow)
	var n int
	for _, fc := range p.history[t] {
		if fc.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

func (p *Planner) delayFor(s Strategy, plan Plan, attempts int) time.Duration {
	if s != StrategyExponentialBackoff {
		return plan.Delay
	}
	d := plan.Delay << attempts
	if d > backoffCap || (d <= 0 && plan.Delay > 0) {
		d = backoffCap
	}
	return d
}

func (p *Planner) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-p.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Planner) apply(ctx context.Context, s Strategy, fc Context) error {
	switch s {
	case StrategyRestartService:
		return p.actions.RestartService(ctx)
	case StrategyReinitializeAudio:
		return p.actions.ReinitializeAudio(ctx)
	case StrategySwitchProvider:
		return p.actions.SwitchProvider(ctx, fc.Stage)
	case StrategyRequestPermissions:
		return p.actions.RequestPermissions(ctx)
	case StrategyExponentialBackoff:
		// The delay already happened in wait; success here means "retry on
		// the next turn".
		return nil
	case StrategyFallbackMode:
		return p.actions.EnterFallbackMode(ctx)
	default:
		return fmt.Errorf("failure: unknown strategy %q", s)
	}
}
