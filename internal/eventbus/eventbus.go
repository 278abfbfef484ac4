// Package eventbus provides the typed one-way notification channel between
// the voice runtime and its UI sink.
//
// Event kinds form a closed enum so mismatched event names are caught at
// compile time instead of failing silently at dispatch. Delivery is
// fire-and-forget: a slow subscriber loses events rather than stalling the
// session event loop. Subscribers must not assume ordering beyond "events for
// one turn precede events for the next".
package eventbus

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies an event emitted by the runtime.
type Kind int

const (
	KindListeningStarted Kind = iota
	KindListeningStopped
	KindSpeechDetected
	KindSpeechEnded
	KindTranscription
	KindAISpeaking
	KindAIFinishedSpeaking
	KindUserInterrupted
	KindError
	KindRecoveryStarted
	KindRecoveryCompleted
	KindRecoveryFailed
)

// String returns the wire-level topic name of the kind.
func (k Kind) String() string {
	switch k {
	case KindListeningStarted:
		return "listening-started"
	case KindListeningStopped:
		return "listening-stopped"
	case KindSpeechDetected:
		return "speech-detected"
	case KindSpeechEnded:
		return "speech-ended"
	case KindTranscription:
		return "transcription"
	case KindAISpeaking:
		return "ai-speaking"
	case KindAIFinishedSpeaking:
		return "ai-finished-speaking"
	case KindUserInterrupted:
		return "user-interrupted"
	case KindError:
		return "error"
	case KindRecoveryStarted:
		return "recovery-started"
	case KindRecoveryCompleted:
		return "recovery-completed"
	case KindRecoveryFailed:
		return "recovery-failed"
	default:
		return "unknown"
	}
}

// Event is a single notification with its typed payload fields. Only the
// fields relevant to the Kind are set.
type Event struct {
	Kind      Kind
	SessionID string
	Timestamp time.Time

	// Text carries the transcript for KindTranscription and the assistant
	// response for KindAISpeaking.
	Text string

	// Err carries the failure for KindError and KindRecovery*.
	Err error

	// Detail carries a short human-readable annotation (e.g. the recovery
	// strategy name or the provider that was switched to).
	Detail string
}

// Bus fans events out to subscribers. It is safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its event channel. The
// channel is buffered; events are dropped when the buffer is full.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("event dropped for slow subscriber", "kind", ev.Kind.String())
		}
	}
}

// Close closes all subscriber channels. Publish after Close panics; callers
// stop the session loop first.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
