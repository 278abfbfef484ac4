// Package providers holds the ordered transcription and synthesis adapter
// lists and performs circuit-breaker-gated selection and fallback.
//
// Each adapter is registered under a resource name ("stt:whisper",
// "tts:elevenlabs") and wrapped by its own breaker from the shared
// [resilience.Registry]. At any instant exactly one adapter per kind is
// active. When the active adapter's circuit opens, the registry advances to
// the next healthy adapter and stays there (a sticky switch) — it does not
// bounce back per call. The [Registry.SwitchSTT] and [Registry.SwitchTTS]
// operations expose the same advance to the recovery planner.
//
// All methods are safe for concurrent use.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sonus/internal/observe"
	"github.com/MrWong99/sonus/internal/resilience"
	"github.com/MrWong99/sonus/pkg/provider/chat"
	"github.com/MrWong99/sonus/pkg/provider/stt"
	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// ErrNoProviders is returned when a kind has no registered adapters or every
// adapter's circuit is open.
var ErrNoProviders = errors.New("providers: no healthy provider available")

// sttEntry pairs a transcriber with its breaker.
type sttEntry struct {
	name    string
	value   stt.Transcriber
	breaker *resilience.CircuitBreaker
}

// ttsEntry pairs a synthesizer with its breaker.
type ttsEntry struct {
	name    string
	value   tts.Synthesizer
	breaker *resilience.CircuitBreaker
}

// Registry is the ordered provider table for one session container.
type Registry struct {
	breakers *resilience.Registry
	metrics  *observe.Metrics

	mu        sync.Mutex
	stts      []sttEntry
	ttss      []ttsEntry
	activeSTT int
	activeTTS int

	chatBackend chat.Responder
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics attaches instrumentation: every provider call records a request
// counter and, on success, a latency histogram sample for its stage.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty Registry whose per-adapter breakers come from reg.
func New(reg *resilience.Registry, opts ...Option) *Registry {
	r := &Registry{breakers: reg}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterSTT appends a transcriber under the given resource name. Adapters
// are tried in registration order.
func (r *Registry) RegisterSTT(name string, t stt.Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stts = append(r.stts, sttEntry{name: name, value: t, breaker: r.breakers.Get(name)})
}

// RegisterTTS appends a synthesizer under the given resource name.
func (r *Registry) RegisterTTS(name string, s tts.Synthesizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttss = append(r.ttss, ttsEntry{name: name, value: s, breaker: r.breakers.Get(name)})
}

// SetChat sets the conversation backend. The chat backend is singular (no
// ordered list) but still breaker-gated under the "chat" resource.
func (r *Registry) SetChat(c chat.Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatBackend = c
}

// ActiveSTT returns the resource name of the active transcriber, or "".
func (r *Registry) ActiveSTT() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeSTT < len(r.stts) {
		return r.stts[r.activeSTT].name
	}
	return ""
}

// ActiveTTS returns the resource name of the active synthesizer, or "".
func (r *Registry) ActiveTTS() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeTTS < len(r.ttss) {
		return r.ttss[r.activeTTS].name
	}
	return ""
}

// Transcribe runs the utterance against the active transcriber through its
// breaker. An open circuit (or a failure) falls through to the next adapters
// in order; the first adapter that accepts the call becomes the new active
// one. Returns [ErrNoProviders] wrapped with the last error when every
// adapter is exhausted.
func (r *Registry) Transcribe(ctx context.Context, pcm []byte, format stt.Format) (string, error) {
	r.mu.Lock()
	entries := make([]sttEntry, len(r.stts))
	copy(entries, r.stts)
	start := r.activeSTT
	r.mu.Unlock()

	if len(entries) == 0 {
		return "", ErrNoProviders
	}

	var lastErr error
	for i := range entries {
		idx := (start + i) % len(entries)
		entry := entries[idx]

		var text string
		start := time.Now()
		err := entry.breaker.Execute(func() error {
			var innerErr error
			text, innerErr = entry.value.Transcribe(ctx, pcm, format)
			return innerErr
		}, nil)
		r.instrument(ctx, entry.name, "stt", start, err)
		if err == nil {
			r.setActiveSTT(idx, entry.name)
			return text, nil
		}
		lastErr = err
		if errors.Is(err, resilience.ErrCircuitOpen) {
			slog.Debug("skipping transcriber (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("transcriber failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrNoProviders, lastErr)
}

// Synthesize runs text against the active synthesizer through its breaker,
// with the same ordered fallback and sticky-switch semantics as Transcribe.
func (r *Registry) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	r.mu.Lock()
	entries := make([]ttsEntry, len(r.ttss))
	copy(entries, r.ttss)
	start := r.activeTTS
	r.mu.Unlock()

	if len(entries) == 0 {
		return tts.Clip{}, ErrNoProviders
	}

	var lastErr error
	for i := range entries {
		idx := (start + i) % len(entries)
		entry := entries[idx]

		var clip tts.Clip
		start := time.Now()
		err := entry.breaker.Execute(func() error {
			var innerErr error
			clip, innerErr = entry.value.Synthesize(ctx, text)
			return innerErr
		}, nil)
		r.instrument(ctx, entry.name, "tts", start, err)
		if err == nil {
			r.setActiveTTS(idx, entry.name)
			return clip, nil
		}
		lastErr = err
		if errors.Is(err, resilience.ErrCircuitOpen) {
			slog.Debug("skipping synthesizer (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("synthesizer failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return tts.Clip{}, fmt.Errorf("%w: %v", ErrNoProviders, lastErr)
}

// Respond forwards the conversation to the chat backend through the "chat"
// breaker.
func (r *Registry) Respond(ctx context.Context, messages []chat.Message) (string, error) {
	r.mu.Lock()
	backend := r.chatBackend
	r.mu.Unlock()

	if backend == nil {
		return "", ErrNoProviders
	}

	var reply string
	start := time.Now()
	err := r.breakers.Get("chat").Execute(func() error {
		var innerErr error
		reply, innerErr = backend.Respond(ctx, messages)
		return innerErr
	}, nil)
	r.instrument(ctx, "chat", "chat", start, err)
	if err != nil {
		return "", fmt.Errorf("providers: chat backend: %w", err)
	}
	return reply, nil
}

// SwitchSTT advances the active transcriber to the next adapter in order.
// Used by the SwitchProvider recovery strategy.
func (r *Registry) SwitchSTT() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stts) < 2 {
		return ErrNoProviders
	}
	r.activeSTT = (r.activeSTT + 1) % len(r.stts)
	slog.Info("switched active transcriber", "provider", r.stts[r.activeSTT].name)
	return nil
}

// SwitchTTS advances the active synthesizer to the next adapter in order.
func (r *Registry) SwitchTTS() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ttss) < 2 {
		return ErrNoProviders
	}
	r.activeTTS = (r.activeTTS + 1) % len(r.ttss)
	slog.Info("switched active synthesizer", "provider", r.ttss[r.activeTTS].name)
	return nil
}

// AllOpen reports whether every adapter of the given kind ("stt" or "tts")
// currently has an open circuit. The degraded fallback mode only engages in
// that situation.
func (r *Registry) AllOpen(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case "stt":
		if len(r.stts) == 0 {
			return true
		}
		for _, e := range r.stts {
			if e.breaker.State() != resilience.StateOpen {
				return false
			}
		}
	case "tts":
		if len(r.ttss) == 0 {
			return true
		}
		for _, e := range r.ttss {
			if e.breaker.State() != resilience.StateOpen {
				return false
			}
		}
	default:
		return false
	}
	return true
}

// instrument records one provider call when metrics are attached. Open
// circuits count as a request with status "open" but not as a provider error.
func (r *Registry) instrument(ctx context.Context, provider, kind string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	switch {
	case err == nil:
		r.metrics.RecordProviderRequest(ctx, provider, kind, "ok")
		elapsed := time.Since(start).Seconds()
		switch kind {
		case "stt":
			r.metrics.STTDuration.Record(ctx, elapsed)
		case "tts":
			r.metrics.TTSDuration.Record(ctx, elapsed)
		case "chat":
			r.metrics.ChatDuration.Record(ctx, elapsed)
		}
	case errors.Is(err, resilience.ErrCircuitOpen):
		r.metrics.RecordProviderRequest(ctx, provider, kind, "open")
	default:
		r.metrics.RecordProviderRequest(ctx, provider, kind, "error")
		r.metrics.RecordProviderError(ctx, provider, kind)
	}
}

func (r *Registry) setActiveSTT(idx int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeSTT != idx {
		slog.Info("active transcriber changed", "provider", name)
		r.activeSTT = idx
	}
}

func (r *Registry) setActiveTTS(idx int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeTTS != idx {
		slog.Info("active synthesizer changed", "provider", name)
		r.activeTTS = idx
	}
}
