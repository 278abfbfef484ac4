package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/sonus/internal/clockwork"
	"github.com/MrWong99/sonus/internal/eventbus"
	"github.com/MrWong99/sonus/internal/failure"
	"github.com/MrWong99/sonus/internal/providers"
	"github.com/MrWong99/sonus/internal/vad"
	"github.com/MrWong99/sonus/pkg/audio"
	"github.com/MrWong99/sonus/pkg/provider/chat"
	"github.com/MrWong99/sonus/pkg/provider/stt"
	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// Player plays a synthesised clip to completion or until ctx is cancelled.
// Cancellation must stop audible output promptly.
type Player interface {
	Play(ctx context.Context, clip tts.Clip) error
}

// Recoverer is the slice of the failure planner the machine needs.
type Recoverer interface {
	Recover(ctx context.Context, fc failure.Context) error
}

// Config wires a [Machine].
type Config struct {
	// Registry performs breaker-gated provider calls. Required.
	Registry *providers.Registry

	// Detector classifies frame levels into speech edges. Required.
	Detector *vad.Detector

	// Player plays synthesis output. Required.
	Player Player

	// Bus receives UI notifications. Required.
	Bus *eventbus.Bus

	// Recoverer handles classified failures. May be nil in tests; failures
	// then just end the turn.
	Recoverer Recoverer

	// Clock supplies time. Defaults to the wall clock.
	Clock clockwork.Clock

	// SystemPrompt seeds the conversation history.
	SystemPrompt string

	// MinTurnDuration is the minimum buffered-utterance length that reaches
	// the transcription provider; shorter turns are discarded silently.
	// Default: 300ms.
	MinTurnDuration time.Duration

	// Format describes the capture audio handed to transcription.
	Format stt.Format

	// HistoryLimit bounds the in-memory conversation history (message pairs
	// beyond the limit are dropped oldest-first). Default: 32.
	HistoryLimit int
}

// Pipeline stage names attached to turn failures. Recovery actions route on
// these to decide which provider kind to act on.
const (
	StageTranscribe = "transcribe"
	StageChat       = "chat"
	StageSynthesize = "synthesize"
	StagePlayback   = "playback"
)

// internal loop events

type eventKind int

const (
	evTranscriptDone eventKind = iota
	evResponseDone
	evClipDone
	evPlaybackDone
	evTurnFailed
	evStop
	evCommitTurn
	evSetFallbackMode
)

type event struct {
	kind       eventKind
	transcript string
	response   string
	clip       tts.Clip
	err        error
	stage      string
	fallback   bool
}

// Machine drives one [Session]. Construct with [New], start with [Run].
// All exported mutators are safe for concurrent use: they post events into
// the loop rather than touching state directly.
type Machine struct {
	cfg   Config
	clock clockwork.Clock

	// stateMu guards session.State for StateSnapshot readers; all other
	// session fields are loop-owned.
	stateMu sync.Mutex

	session Session
	history []chat.Message

	events chan event

	// playCancel cancels the in-flight synthesis/playback of the current
	// turn. Owned by the loop goroutine.
	playCancel context.CancelFunc

	// fallbackMode disables VAD-driven turn commits; turns are committed
	// manually (push-to-talk equivalent).
	fallbackMode bool
}

// New creates a Machine with a fresh session ID.
func New(cfg Config) (*Machine, error) {
	if cfg.Registry == nil || cfg.Detector == nil || cfg.Player == nil || cfg.Bus == nil {
		return nil, errors.New("session: Registry, Detector, Player, and Bus are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.Real{}
	}
	if cfg.MinTurnDuration <= 0 {
		cfg.MinTurnDuration = 300 * time.Millisecond
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 32
	}

	m := &Machine{
		cfg:    cfg,
		clock:  cfg.Clock,
		events: make(chan event, 32),
		session: Session{
			ID:    uuid.NewString(),
			State: StateIdle,
		},
	}
	if cfg.SystemPrompt != "" {
		m.history = append(m.history, chat.Message{Role: chat.RoleSystem, Content: cfg.SystemPrompt})
	}
	return m, nil
}

// SessionID returns the session's opaque identifier.
func (m *Machine) SessionID() string { return m.session.ID }

// Stop posts a stop request; the loop transitions to Stopped and Run returns.
func (m *Machine) Stop() {
	m.post(event{kind: evStop})
}

// CommitTurn manually ends the in-progress utterance. This is the
// push-to-talk path used in degraded fallback mode.
func (m *Machine) CommitTurn() {
	m.post(event{kind: evCommitTurn})
}

// SetFallbackMode toggles degraded mode: when on, VAD edges no longer commit
// turns and the caller commits them via [Machine.CommitTurn].
func (m *Machine) SetFallbackMode(on bool) {
	m.post(event{kind: evSetFallbackMode, fallback: on})
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	default:
		// The loop is gone or saturated; controls are best-effort.
		slog.Debug("session event dropped", "kind", ev.kind)
	}
}

// Run executes the event loop until Stop is called, the frame stream closes,
// or ctx is cancelled. Frames arrive on frames; Run never blocks frame
// ingestion on provider calls.
func (m *Machine) Run(ctx context.Context, frames <-chan audio.Frame) error {
	m.transition(StateListening)
	m.publish(eventbus.Event{Kind: eventbus.KindListeningStarted})

	defer func() {
		m.cancelPlayback()
		if m.session.State != StateStopped {
			m.transition(StateStopped)
		}
		m.publish(eventbus.Event{Kind: eventbus.KindListeningStopped})
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				slog.Info("capture stream ended, stopping session", "session_id", m.session.ID)
				return nil
			}
			m.onFrame(ctx, f)

		case ev := <-m.events:
			if done := m.onEvent(ctx, ev); done {
				return nil
			}
		}
	}
}

// ─── frame handling ───────────────────────────────────────────────────────────

func (m *Machine) onFrame(ctx context.Context, f audio.Frame) {
	dec := m.cfg.Detector.Process(f.Level)

	// Barge-in: user speech during assistant playback always wins.
	if dec.Edge == vad.EdgeSpeechStart && m.session.State == StateSpeaking {
		m.interrupt()
		// Fall through: the frame that triggered the interrupt starts the
		// next utterance.
	}

	switch m.session.State {
	case StateListening:
		m.listenFrame(ctx, f, dec)
	default:
		// A turn is in flight (or the session is stopping); VAD state was
		// still updated above so barge-in and noise tracking stay warm.
	}
}

func (m *Machine) listenFrame(ctx context.Context, f audio.Frame, dec vad.Decision) {
	if m.fallbackMode {
		// Push-to-talk: buffer everything, commit happens manually.
		m.session.appendFrame(f)
		return
	}

	switch dec.Edge {
	case vad.EdgeSpeechStart:
		m.session.clearTurn()
		m.session.appendFrame(f)
		m.publish(eventbus.Event{Kind: eventbus.KindSpeechDetected})

	case vad.EdgeSpeechEnd:
		m.session.LastUserSpeechTime = m.clock.Now()
		m.publish(eventbus.Event{Kind: eventbus.KindSpeechEnded})
		m.commitTurn(ctx)

	default:
		if m.cfg.Detector.InSpeech() {
			m.session.appendFrame(f)
		}
	}
}

// commitTurn sends the buffered utterance into the transcription stage, or
// discards it silently when it is too short to be meaningful.
func (m *Machine) commitTurn(ctx context.Context) {
	if m.session.turnDuration < m.cfg.MinTurnDuration {
		slog.Debug("discarding sub-threshold turn",
			"duration", m.session.turnDuration,
			"min", m.cfg.MinTurnDuration)
		m.session.clearTurn()
		return
	}

	pcm := m.session.turnPCM()
	m.session.clearTurn()
	m.transition(StateTranscribing)

	go func() {
		text, err := m.cfg.Registry.Transcribe(ctx, pcm, m.cfg.Format)
		if err != nil {
			m.post(event{kind: evTurnFailed, err: err, stage: StageTranscribe})
			return
		}
		m.post(event{kind: evTranscriptDone, transcript: text})
	}()
}

// ─── loop events ──────────────────────────────────────────────────────────────

func (m *Machine) onEvent(ctx context.Context, ev event) (done bool) {
	switch ev.kind {
	case evStop:
		m.cancelPlayback()
		m.transition(StateStopped)
		return true

	case evSetFallbackMode:
		m.fallbackMode = ev.fallback
		m.session.clearTurn()
		slog.Info("fallback mode changed", "enabled", ev.fallback)

	case evCommitTurn:
		if m.session.State == StateListening {
			m.commitTurn(ctx)
		}

	case evTranscriptDone:
		m.onTranscript(ctx, ev.transcript)

	case evResponseDone:
		m.onResponse(ctx, ev.response)

	case evClipDone:
		m.onClip(ctx, ev.clip)

	case evPlaybackDone:
		if m.session.State == StateSpeaking {
			m.session.LastAssistantSpeechTime = m.clock.Now()
			m.publish(eventbus.Event{Kind: eventbus.KindAIFinishedSpeaking})
			m.resumeListening()
		}

	case evTurnFailed:
		m.onTurnFailure(ctx, ev.stage, ev.err)
	}
	return false
}

func (m *Machine) onTranscript(ctx context.Context, text string) {
	if m.session.State != StateTranscribing {
		return // turn was cancelled while the call was outstanding
	}
	if text == "" {
		// Nothing intelligible; restart the turn silently.
		m.resumeListening()
		return
	}

	m.publish(eventbus.Event{Kind: eventbus.KindTranscription, Text: text})
	m.history = append(m.history, chat.Message{Role: chat.RoleUser, Content: text})
	m.trimHistory()
	m.transition(StateAwaitingResponse)

	msgs := make([]chat.Message, len(m.history))
	copy(msgs, m.history)
	go func() {
		reply, err := m.cfg.Registry.Respond(ctx, msgs)
		if err != nil {
			m.post(event{kind: evTurnFailed, err: err, stage: StageChat})
			return
		}
		m.post(event{kind: evResponseDone, response: reply})
	}()
}

func (m *Machine) onResponse(ctx context.Context, reply string) {
	if m.session.State != StateAwaitingResponse {
		return
	}
	if reply == "" {
		m.resumeListening()
		return
	}

	m.history = append(m.history, chat.Message{Role: chat.RoleAssistant, Content: reply})
	m.trimHistory()

	// The synthesis call carries the turn's cancellation token so barge-in
	// discards a late network response instead of playing it.
	playCtx, cancel := context.WithCancel(ctx)
	m.playCancel = cancel
	m.transition(StateSpeaking)
	m.publish(eventbus.Event{Kind: eventbus.KindAISpeaking, Text: reply})

	go func() {
		clip, err := m.cfg.Registry.Synthesize(playCtx, reply)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return // interrupted; the loop already moved on
			}
			m.post(event{kind: evTurnFailed, err: err, stage: StageSynthesize})
			return
		}
		m.post(event{kind: evClipDone, clip: clip})
	}()
}

func (m *Machine) onClip(ctx context.Context, clip tts.Clip) {
	if m.session.State != StateSpeaking || m.playCancel == nil {
		return // interrupted before the clip arrived
	}
	if len(clip.Data) == 0 {
		m.publish(eventbus.Event{Kind: eventbus.KindAIFinishedSpeaking})
		m.resumeListening()
		return
	}

	playCtx := m.playbackContext(ctx)
	go func() {
		if err := m.cfg.Player.Play(playCtx, clip); err != nil && !errors.Is(err, context.Canceled) {
			m.post(event{kind: evTurnFailed, err: err, stage: StagePlayback})
			return
		}
		m.post(event{kind: evPlaybackDone})
	}()
}

// playbackContext derives a context cancelled by the turn's cancel token.
func (m *Machine) playbackContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	prev := m.playCancel
	m.playCancel = func() {
		prev()
		cancel()
	}
	return ctx
}

// ─── failure path ─────────────────────────────────────────────────────────────

func (m *Machine) onTurnFailure(ctx context.Context, stage string, err error) {
	typ := failure.Classify(err)
	slog.Warn("turn failed",
		"session_id", m.session.ID,
		"stage", stage,
		"type", string(typ),
		"err", err)

	m.cancelPlayback()

	if typ.Fatal() {
		// No safe automated remedy; surface and stay stopped on the turn.
		m.publish(eventbus.Event{Kind: eventbus.KindError, Err: err, Detail: string(typ)})
		m.resumeListening()
		return
	}

	if m.cfg.Recoverer != nil {
		fc := failure.Context{Type: typ, Err: err, Timestamp: m.clock.Now(), Stage: stage}
		m.publish(eventbus.Event{Kind: eventbus.KindRecoveryStarted, Detail: string(typ)})
		go func() {
			if rerr := m.cfg.Recoverer.Recover(ctx, fc); rerr != nil {
				m.publish(eventbus.Event{Kind: eventbus.KindRecoveryFailed, Err: rerr, Detail: string(typ)})
				m.publish(eventbus.Event{Kind: eventbus.KindError, Err: err, Detail: string(typ)})
				return
			}
			m.publish(eventbus.Event{Kind: eventbus.KindRecoveryCompleted, Detail: string(typ)})
		}()
	} else {
		m.publish(eventbus.Event{Kind: eventbus.KindError, Err: err, Detail: string(typ)})
	}

	// A failed turn always returns to Listening so the conversation is never
	// permanently stuck.
	m.resumeListening()
}

// ─── transitions ──────────────────────────────────────────────────────────────

// interrupt implements barge-in: stop playback synchronously, mark the
// deliberate Interrupted window, and resume listening.
func (m *Machine) interrupt() {
	m.session.interruptFlag = true
	m.transition(StateInterrupted)
	m.cancelPlayback()
	m.publish(eventbus.Event{Kind: eventbus.KindUserInterrupted})
	m.session.interruptFlag = false
	m.resumeListening()
}

func (m *Machine) resumeListening() {
	m.session.clearTurn()
	m.playCancel = nil
	m.transition(StateListening)
}

func (m *Machine) cancelPlayback() {
	if m.playCancel != nil {
		m.playCancel()
		m.playCancel = nil
	}
}

func (m *Machine) transition(to State) {
	m.stateMu.Lock()
	from := m.session.State
	if from == to {
		m.stateMu.Unlock()
		return
	}
	m.session.State = to
	m.stateMu.Unlock()
	slog.Debug("session state transition",
		"session_id", m.session.ID,
		"from", from.String(),
		"to", to.String())
}

func (m *Machine) trimHistory() {
	if len(m.history) <= m.cfg.HistoryLimit {
		return
	}
	// Keep the system prompt, when one was seeded, and the newest messages.
	if m.history[0].Role == chat.RoleSystem {
		keep := m.cfg.HistoryLimit - 1
		trimmed := make([]chat.Message, 0, m.cfg.HistoryLimit)
		trimmed = append(trimmed, m.history[0])
		trimmed = append(trimmed, m.history[len(m.history)-keep:]...)
		m.history = trimmed
		return
	}
	m.history = m.history[len(m.history)-m.cfg.HistoryLimit:]
}

func (m *Machine) publish(ev eventbus.Event) {
	ev.SessionID = m.session.ID
	ev.Timestamp = m.clock.Now()
	m.cfg.Bus.Publish(ev)
}

// StateSnapshot returns the current state. Intended for tests and health
// reporting; the value may be stale by the time it is observed.
func (m *Machine) StateSnapshot() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.session.State
}
