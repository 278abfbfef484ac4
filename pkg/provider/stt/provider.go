// Package stt defines the Transcriber contract for speech-to-text backends.
//
// The runtime treats transcription as a capability, independent of transport:
// a completed utterance (the accumulated turn buffer) goes in as raw PCM plus
// its format, and the recognised text comes back. Concrete transports include
// a batch HTTP endpoint (whisper-server style multipart upload), a streaming
// WebSocket channel, and an in-process whisper.cpp binding.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Format describes the PCM payload handed to [Transcriber.Transcribe].
type Format struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count; 1 for mono.
	Channels int

	// Language is the BCP-47 recognition hint; empty lets the provider
	// auto-detect where supported.
	Language string
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts one utterance of 16-bit little-endian PCM into text.
	// An empty transcript with a nil error means the provider heard nothing
	// intelligible; the caller discards the turn.
	Transcribe(ctx context.Context, pcm []byte, format Format) (string, error)
}
