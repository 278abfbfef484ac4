// Package session implements the conversation turn-taking loop at the heart
// of the Sonus runtime.
//
// A [Machine] drives one [Session] through the state cycle
// Idle → Listening → Transcribing → AwaitingResponse → Speaking → Listening,
// with barge-in (Interrupted) and an explicit Stopped terminal state. All
// state mutation happens on a single event-loop goroutine: audio frames, VAD
// edges, provider results, playback completion, and control requests are all
// events dispatched into that loop, so the session needs no locks.
//
// Provider calls are asynchronous with respect to frame ingestion — capture
// and VAD keep running while a turn's network calls are outstanding, which is
// what makes barge-in detection during Speaking possible. Within a turn the
// transcription → chat → synthesis sequence is strictly ordered, and a new
// turn cannot begin transcription until the previous turn has resolved.
package session

import (
	"time"

	"github.com/MrWong99/sonus/pkg/audio"
)

// State is the conversation state of a [Session].
type State int

const (
	// StateIdle is the initial state before the session starts.
	StateIdle State = iota

	// StateListening means capture is live and frames accumulate once VAD
	// detects speech.
	StateListening

	// StateTranscribing means a completed utterance is with the transcription
	// provider.
	StateTranscribing

	// StateAwaitingResponse means the transcript is with the chat backend.
	StateAwaitingResponse

	// StateSpeaking means the assistant's reply is being played.
	StateSpeaking

	// StateInterrupted is the transient barge-in state between stopping
	// playback and resuming listening.
	StateInterrupted

	// StateStopped is terminal: the session was explicitly stopped.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Session is the root aggregate for one active conversation. It is owned and
// mutated exclusively by the [Machine] event loop; other goroutines observe it
// only through snapshots.
type Session struct {
	// ID is the opaque session identifier, assigned at session start.
	ID string

	// State is the current conversation state.
	State State

	// LastUserSpeechTime is when the user's speech last ended.
	LastUserSpeechTime time.Time

	// LastAssistantSpeechTime is when assistant playback last finished.
	LastAssistantSpeechTime time.Time

	// turnBuffer accumulates the in-progress utterance's frames.
	turnBuffer []audio.Frame

	// turnDuration is the summed duration of the buffered frames.
	turnDuration time.Duration

	// interruptFlag is set when barge-in fires during Speaking and cleared
	// once the transition back to Listening completes.
	interruptFlag bool
}

// appendFrame adds a frame to the turn buffer.
func (s *Session) appendFrame(f audio.Frame) {
	s.turnBuffer = append(s.turnBuffer, f)
	s.turnDuration += f.Duration()
}

// clearTurn discards the buffered utterance.
func (s *Session) clearTurn() {
	s.turnBuffer = s.turnBuffer[:0]
	s.turnDuration = 0
}

// turnPCM concatenates the buffered frames into one PCM payload.
func (s *Session) turnPCM() []byte {
	var n int
	for _, f := range s.turnBuffer {
		n += len(f.PCM)
	}
	pcm := make([]byte, 0, n)
	for _, f := range s.turnBuffer {
		pcm = append(pcm, f.PCM...)
	}
	return pcm
}
