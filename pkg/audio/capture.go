// Package audio defines the capture contract and frame types shared by the
// Sonus voice pipeline.
//
// The central abstraction is [Capture]: opening it yields a [Stream] that
// delivers a continuous sequence of [Frame] values from the input device until
// the stream is closed. Capture owns the OS audio-input resource exclusively
// between Open and Close; callers must close the stream on every exit path to
// avoid leaking the device lock.
//
// Implementations must be safe for concurrent use. A single [Stream] is owned
// by one consumer goroutine.
package audio

import "errors"

// Sentinel errors returned by [Capture.Open].
var (
	// ErrDeviceUnavailable indicates the capture device could not be opened
	// (missing hardware, busy device, or backend initialisation failure).
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

	// ErrPermissionDenied indicates the OS refused microphone access for this
	// process. There is no automated remedy; the user must grant access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
)

// CaptureConfig describes the desired input stream format and preprocessing.
type CaptureConfig struct {
	// SampleRate is the capture sample rate in Hz. Common values: 16000, 48000.
	SampleRate int

	// Channels is the number of input channels. 1 = mono.
	Channels int

	// FrameSizeMs is the duration of each delivered frame in milliseconds.
	FrameSizeMs int

	// EchoCancellation enables acoustic echo cancellation where the backend
	// supports it. Backends without AEC ignore this flag.
	EchoCancellation bool

	// NoiseSuppression enables backend noise suppression where available.
	NoiseSuppression bool

	// AutoGain enables automatic gain control where available.
	AutoGain bool
}

// SamplesPerFrame returns the per-channel sample count of one frame.
func (c CaptureConfig) SamplesPerFrame() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// Stream is an open capture session. Frames are delivered in capture order
// with strictly increasing sequence numbers.
//
// Callers must call Close when done; failing to do so leaks the device handle.
type Stream interface {
	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the stream ends (Close, fatal device error).
	Frames() <-chan Frame

	// Close stops capture and releases the device. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Capture is the abstraction over a platform audio-input backend.
type Capture interface {
	// Open starts capturing with the given configuration and returns a live
	// [Stream]. Returns [ErrDeviceUnavailable] or [ErrPermissionDenied]
	// (possibly wrapped) when the device cannot be acquired.
	Open(cfg CaptureConfig) (Stream, error)
}
