// Package app wires all Sonus subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture → session loop plus the observability
// server, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithCapture, WithPlayer, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonus/internal/clockwork"
	"github.com/MrWong99/sonus/internal/config"
	"github.com/MrWong99/sonus/internal/eventbus"
	"github.com/MrWong99/sonus/internal/failure"
	"github.com/MrWong99/sonus/internal/health"
	"github.com/MrWong99/sonus/internal/observe"
	"github.com/MrWong99/sonus/internal/providers"
	"github.com/MrWong99/sonus/internal/resilience"
	"github.com/MrWong99/sonus/internal/session"
	"github.com/MrWong99/sonus/internal/vad"
	"github.com/MrWong99/sonus/pkg/audio"
	"github.com/MrWong99/sonus/pkg/audio/playback"
	"github.com/MrWong99/sonus/pkg/provider/stt"
)

// App owns all subsystem lifetimes and orchestrates the Sonus voice pipeline.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	breakers *resilience.Registry
	registry *providers.Registry
	detector *vad.Detector
	bus      *eventbus.Bus
	planner  *failure.Planner
	machine  *session.Machine
	capture  audio.Capture
	player   session.Player
	clock    clockwork.Clock
	metrics  *observe.Metrics

	// frames relays capture output into the state machine. It stays open
	// across audio reinitialisation so the machine never observes a restart.
	frames chan audio.Frame

	// streamMu guards the current capture stream while it is swapped out
	// during recovery.
	streamMu sync.Mutex
	stream   audio.Stream

	// runCtx is the lifetime context captured in Run; recovery actions use
	// it so a reopened stream outlives the recovery call.
	runCtx context.Context

	// lastSpeechEnd marks the previous speech-end event for turn latency.
	// Only the consumeEvents goroutine touches it.
	lastSpeechEnd time.Time

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCapture injects a capture backend instead of creating one from config.
func WithCapture(c audio.Capture) Option {
	return func(a *App) { a.capture = c }
}

// WithPlayer injects a playback implementation instead of the speaker player.
func WithPlayer(p session.Player) Option {
	return func(a *App) { a.player = p }
}

// WithClock injects a clock for deterministic tests.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Providers and the
// capture backend are instantiated through reg from the entries named in cfg.
// Use Option functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		frames: make(chan audio.Frame, 16),
	}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clockwork.Real{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Circuit breakers ──────────────────────────────────────────────
	a.breakers = resilience.NewRegistry(resilience.Config{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		SuccessThreshold: cfg.Resilience.SuccessThreshold,
		Timeout:          time.Duration(cfg.Resilience.TimeoutSeconds) * time.Second,
		MonitoringWindow: time.Duration(cfg.Resilience.MonitoringWindowSeconds) * time.Second,
		Clock:            a.clock,
		OnStateChange: func(name string, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})

	// ── 2. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(reg); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	// ── 3. Capture backend ───────────────────────────────────────────────
	if a.capture == nil {
		c, err := reg.CreateCapture(cfg.Audio)
		if err != nil {
			return nil, fmt.Errorf("app: init capture: %w", err)
		}
		a.capture = c
	}
	if c, ok := a.capture.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	// ── 4. VAD + event bus + player ──────────────────────────────────────
	a.detector = vad.New(vad.Config{
		Tuning: vadTuning(cfg.VAD),
		Clock:  a.clock,
	})
	a.bus = eventbus.New()
	if a.player == nil {
		a.player = &clipPlayer{inner: playback.New()}
	}

	// ── 5. Recovery planner ──────────────────────────────────────────────
	a.planner = failure.NewPlanner(failure.PlannerConfig{
		Actions: a,
		Clock:   a.clock,
	})

	// ── 6. Conversation state machine ────────────────────────────────────
	m, err := session.New(session.Config{
		Registry:        a.registry,
		Detector:        a.detector,
		Player:          a.player,
		Bus:             a.bus,
		Recoverer:       a.planner,
		Clock:           a.clock,
		SystemPrompt:    cfg.Session.SystemPrompt,
		MinTurnDuration: time.Duration(cfg.Session.MinTurnDurationMs) * time.Millisecond,
		HistoryLimit:    cfg.Session.HistoryLimit,
		Format: stt.Format{
			SampleRate: captureConfig(cfg.Audio).SampleRate,
			Channels:   captureConfig(cfg.Audio).Channels,
			Language:   cfg.Session.Language,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("app: init session machine: %w", err)
	}
	a.machine = m

	return a, nil
}

// initProviders instantiates every provider named in the config and registers
// it with the breaker-gated runtime registry. Unregistered names are skipped
// with a debug log so partial configs stay usable during development.
func (a *App) initProviders(reg *config.Registry) error {
	a.registry = providers.New(a.breakers, providers.WithMetrics(a.metrics))

	for _, entry := range a.cfg.Providers.STT {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "stt", "name", entry.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		a.registry.RegisterSTT(entry.Name, p)
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	for _, entry := range a.cfg.Providers.TTS {
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "tts", "name", entry.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		a.registry.RegisterTTS(entry.Name, p)
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
	}

	if name := a.cfg.Providers.Chat.Name; name != "" {
		p, err := reg.CreateChat(a.cfg.Providers.Chat)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "chat", "name", name)
		} else if err != nil {
			return fmt.Errorf("create chat provider %q: %w", name, err)
		} else {
			a.registry.SetChat(p)
			slog.Info("provider created", "kind", "chat", "name", name)
		}
	}

	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens the microphone and runs the session loop until ctx is cancelled.
// When cfg.Server.ListenAddr is set, it also serves /metrics, /healthz, and
// /readyz. Run returns the first error from any part, or ctx's error.
func (a *App) Run(ctx context.Context) error {
	a.runCtx = ctx
	if err := a.openStream(ctx); err != nil {
		return fmt.Errorf("app: open capture stream: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := a.newHTTPServer(addr)
		g.Go(func() error {
			slog.Info("observability server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	g.Go(func() error { return a.consumeEvents(ctx) })

	g.Go(func() error {
		a.metrics.ActiveSessions.Add(ctx, 1)
		defer a.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("session running", "session_id", a.machine.SessionID())
		return a.machine.Run(ctx, a.frames)
	})

	return g.Wait()
}

// newHTTPServer builds the observability mux: Prometheus metrics plus the
// liveness and breaker-backed readiness probes.
func (a *App) newHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.Breakers(a.breakers)).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// openStream opens a capture stream and starts a pump goroutine that relays
// its frames into the shared frames channel. The pump exits when the stream's
// channel closes or ctx is done; the frames channel itself is never closed so
// the machine survives stream swaps.
func (a *App) openStream(ctx context.Context) error {
	s, err := a.capture.Open(captureConfig(a.cfg.Audio))
	if err != nil {
		return err
	}

	a.streamMu.Lock()
	old := a.stream
	a.stream = s
	a.streamMu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("closing previous capture stream", "err", err)
		}
	}

	go func() {
		for f := range s.Frames() {
			select {
			case a.frames <- f:
			case <-ctx.Done():
				return
			}
		}
		slog.Debug("capture pump finished")
	}()

	return nil
}

// consumeEvents drains the UI bus: every event is logged, and the ones that
// map to a metric are counted. This is the desktop runtime's notification
// surface; a GUI front-end would subscribe the same way.
func (a *App) consumeEvents(ctx context.Context) error {
	sub := a.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			a.handleEvent(ctx, ev)
		}
	}
}

// handleEvent logs one bus event and records its metrics.
func (a *App) handleEvent(ctx context.Context, ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.KindSpeechEnded:
		slog.Debug("speech ended", "session_id", ev.SessionID)
		a.lastSpeechEnd = ev.Timestamp
	case eventbus.KindAISpeaking:
		slog.Debug("assistant speaking", "session_id", ev.SessionID)
		if !a.lastSpeechEnd.IsZero() {
			a.metrics.TurnDuration.Record(ctx, ev.Timestamp.Sub(a.lastSpeechEnd).Seconds())
			a.lastSpeechEnd = time.Time{}
		}
	case eventbus.KindError:
		slog.Error("session error", "session_id", ev.SessionID, "err", ev.Err, "detail", ev.Detail)
	case eventbus.KindRecoveryStarted:
		slog.Warn("recovery started", "session_id", ev.SessionID, "detail", ev.Detail, "err", ev.Err)
	case eventbus.KindRecoveryCompleted:
		slog.Info("recovery completed", "session_id", ev.SessionID, "detail", ev.Detail)
		a.metrics.RecordRecovery(ctx, ev.Detail, "ok")
	case eventbus.KindRecoveryFailed:
		slog.Error("recovery failed", "session_id", ev.SessionID, "detail", ev.Detail, "err", ev.Err)
		a.metrics.RecordRecovery(ctx, ev.Detail, "failed")
	case eventbus.KindUserInterrupted:
		slog.Info("user interrupted playback", "session_id", ev.SessionID)
		a.metrics.Interruptions.Add(ctx, 1)
		a.metrics.RecordTurn(ctx, "interrupted")
	case eventbus.KindAIFinishedSpeaking:
		slog.Debug("assistant finished speaking", "session_id", ev.SessionID)
		a.metrics.RecordTurn(ctx, "ok")
	case eventbus.KindTranscription:
		slog.Info("transcription", "session_id", ev.SessionID, "text", ev.Text)
	default:
		slog.Debug("session event", "kind", ev.Kind.String(), "session_id", ev.SessionID)
	}
}

// ─── Runtime controls ────────────────────────────────────────────────────────

// ApplyVAD applies new detection tuning to the running detector. Used by the
// config watcher for hot reload.
func (a *App) ApplyVAD(v config.VADConfig) {
	a.detector.SetTuning(vadTuning(v))
	slog.Info("vad tuning updated", "threshold", v.Threshold, "silence_timeout_ms", v.SilenceTimeoutMs)
}

// CommitTurn finalises the buffered turn immediately. It is the manual
// trigger used in push-to-talk fallback mode.
func (a *App) CommitTurn() { a.machine.CommitTurn() }

// Bus exposes the UI event bus for additional subscribers (front-ends, tests).
func (a *App) Bus() *eventbus.Bus { return a.bus }

// Breakers exposes breaker snapshots for diagnostics.
func (a *App) Breakers() []resilience.Stats { return a.breakers.Snapshots() }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.machine.Stop()

		// Stop the microphone first so no new turns begin.
		a.streamMu.Lock()
		s := a.stream
		a.stream = nil
		a.streamMu.Unlock()
		if s != nil {
			if err := s.Close(); err != nil {
				slog.Warn("capture stream close error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		a.bus.Close()
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// captureConfig converts the YAML audio block to the capture contract,
// filling defaults for unset values.
func captureConfig(c config.AudioConfig) audio.CaptureConfig {
	cfg := audio.CaptureConfig{
		SampleRate:       c.SampleRate,
		Channels:         c.Channels,
		FrameSizeMs:      c.FrameSizeMs,
		EchoCancellation: c.EchoCancellation,
		NoiseSuppression: c.NoiseSuppression,
		AutoGain:         c.AutoGain,
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.FrameSizeMs == 0 {
		cfg.FrameSizeMs = 100
	}
	return cfg
}

// vadTuning converts the YAML vad block to detector tuning, leaving zero
// values for the detector's own defaults.
func vadTuning(v config.VADConfig) vad.Tuning {
	return vad.Tuning{
		Threshold:      v.Threshold,
		SilenceTimeout: time.Duration(v.SilenceTimeoutMs) * time.Millisecond,
	}
}
