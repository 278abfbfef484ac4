package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/sonus/internal/eventbus"
	"github.com/MrWong99/sonus/internal/failure"
	"github.com/MrWong99/sonus/internal/session"
)

// The App is the recovery action surface: each method applies one strategy's
// effect against the live subsystems.
var _ failure.Actions = (*App)(nil)

// RestartService resets every circuit breaker so the next provider calls run
// against fresh counters, and clears the detector's adaptive state.
func (a *App) RestartService(ctx context.Context) error {
	slog.Info("recovery action: restart service")
	a.breakers.ResetAll()
	a.detector.Reset()
	return nil
}

// ReinitializeAudio tears down the capture stream and opens a fresh one from
// the same backend. The frames channel is untouched, so the session loop
// simply sees a gap followed by new frames.
func (a *App) ReinitializeAudio(ctx context.Context) error {
	slog.Info("recovery action: reinitialize audio")
	runCtx := a.runCtx
	if runCtx == nil {
		runCtx = ctx
	}
	return a.openStream(runCtx)
}

// SwitchProvider advances the active provider for the failing stage to the
// next configured fallback.
func (a *App) SwitchProvider(ctx context.Context, stage string) error {
	slog.Info("recovery action: switch provider", "stage", stage)
	switch stage {
	case session.StageTranscribe, "stt", "transcription":
		return a.registry.SwitchSTT()
	case session.StageSynthesize, session.StagePlayback, "tts", "synthesis":
		return a.registry.SwitchTTS()
	default:
		return fmt.Errorf("app: no switchable providers for stage %q", stage)
	}
}

// RequestPermissions notifies the user that microphone access is missing and
// probes the device again. The probe fails until the user actually grants
// access, which sends the planner on to the strategy's fallbacks.
func (a *App) RequestPermissions(ctx context.Context) error {
	slog.Warn("recovery action: requesting microphone permissions")
	a.bus.Publish(eventbus.Event{
		Kind:      eventbus.KindError,
		SessionID: a.machine.SessionID(),
		Detail:    "microphone permission required",
	})
	return a.ReinitializeAudio(ctx)
}

// EnterFallbackMode switches the session to push-to-talk: detection edges are
// ignored and turns end only on an explicit CommitTurn.
func (a *App) EnterFallbackMode(ctx context.Context) error {
	slog.Warn("recovery action: entering push-to-talk fallback mode")
	a.machine.SetFallbackMode(true)
	return nil
}
