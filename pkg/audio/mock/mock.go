// Package mock provides in-memory mock implementations of the [audio.Capture]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(16)
//	capture := &mock.Capture{OpenResult: stream}
//	go func() {
//	    stream.Push(mock.SpeechFrame(16000, 0))
//	    stream.Finish()
//	}()
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/sonus/pkg/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture].
// Set the exported Result fields before use; inspect the Call* fields after.
type Capture struct {
	mu sync.Mutex

	// OpenResult is returned by [Capture.Open] when OpenError is nil.
	OpenResult audio.Stream

	// OpenError is returned by [Capture.Open] when non-nil.
	OpenError error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// RecordedConfigs holds the configs passed to Open, in call order.
	RecordedConfigs []audio.CaptureConfig
}

var _ audio.Capture = (*Capture)(nil)

// Open records the call and returns the configured result.
func (c *Capture) Open(cfg audio.CaptureConfig) (audio.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOpen++
	c.RecordedConfigs = append(c.RecordedConfigs, cfg)
	if c.OpenError != nil {
		return nil, c.OpenError
	}
	return c.OpenResult, nil
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a scripted implementation of [audio.Stream]. Tests push frames via
// [Stream.Push] and end the stream via [Stream.Finish].
type Stream struct {
	frames chan audio.Frame

	mu sync.Mutex

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed bool
}

var _ audio.Stream = (*Stream)(nil)

// NewStream creates a scripted stream with the given channel buffer depth.
func NewStream(buffer int) *Stream {
	return &Stream{frames: make(chan audio.Frame, buffer)}
}

// Frames returns the scripted frame channel.
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Push delivers a frame to the consumer. Push after Finish panics, matching
// the real backend's invariant that no frames follow stream end.
func (s *Stream) Push(f audio.Frame) { s.frames <- f }

// Finish closes the frame channel, simulating device shutdown.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Close records the call and ends the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.CallCountClose++
	err := s.CloseError
	s.mu.Unlock()
	s.Finish()
	return err
}

// ─── Frame helpers ────────────────────────────────────────────────────────────

// SpeechFrame builds a 100 ms mono frame with a loud constant level, suitable
// for driving VAD speech detection in tests.
func SpeechFrame(sampleRate int, seq uint64) audio.Frame {
	return frameWithLevel(sampleRate, seq, 0.5)
}

// SilenceFrame builds a 100 ms mono frame with near-zero level.
func SilenceFrame(sampleRate int, seq uint64) audio.Frame {
	return frameWithLevel(sampleRate, seq, 0.001)
}

func frameWithLevel(sampleRate int, seq uint64, level float64) audio.Frame {
	samples := sampleRate / 10
	return audio.Frame{
		PCM:        make([]byte, samples*2),
		SampleRate: sampleRate,
		Channels:   1,
		Seq:        seq,
		Timestamp:  time.Duration(seq) * 100 * time.Millisecond,
		Level:      level,
	}
}
