// Package tts defines the Synthesizer contract for text-to-speech backends.
//
// Synthesis is a batch capability from the runtime's point of view: one
// response text goes in, one encoded audio payload comes back, and playback is
// owned by the caller so it can be cancelled on barge-in. Concrete transports
// include the ElevenLabs REST API and a local Coqui-style HTTP server.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Encoding identifies the container of a synthesised payload.
type Encoding string

const (
	EncodingMP3 Encoding = "mp3"
	EncodingWAV Encoding = "wav"
)

// Clip is one synthesised utterance.
type Clip struct {
	// Data is the encoded audio payload.
	Data []byte

	// Encoding identifies the container so the player can pick a decoder.
	Encoding Encoding
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts text into an audio clip. The ctx carries the turn's
	// cancellation token: an interrupted turn cancels ctx and the pending
	// response is discarded rather than played late.
	Synthesize(ctx context.Context, text string) (Clip, error)
}
