package audio

import "time"

// Frame represents a single frame of audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the input
// device, measured by the level meter, gated by VAD, and accumulated into the
// turn buffer while a user utterance is in progress. A Frame is never mutated
// after creation.
type Frame struct {
	// PCM holds 16-bit signed little-endian PCM samples.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono capture).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo.
	Channels int

	// Seq is a monotonic per-stream sequence number, starting at 0.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration

	// Level is the RMS energy of the frame, normalised to [0.0, 1.0].
	Level float64
}

// Duration returns the playback duration of the frame's PCM payload.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
