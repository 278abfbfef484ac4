// Package portaudio provides a PortAudio-backed implementation of the
// [audio.Capture] contract for desktop microphone input.
//
// The backend initialises the PortAudio runtime lazily on the first Open and
// holds the default input device exclusively until the returned stream is
// closed. Echo cancellation, noise suppression, and auto gain are not exposed
// by PortAudio and are ignored; level normalisation happens downstream.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/sonus/pkg/audio"
)

// Compile-time assertion that Backend implements audio.Capture.
var _ audio.Capture = (*Backend)(nil)

// Backend opens PortAudio input streams. The zero value is not usable; create
// instances with [New].
type Backend struct {
	initOnce sync.Once
	initErr  error

	mu   sync.Mutex
	open bool
}

// New creates a PortAudio capture backend. The PortAudio runtime is not
// touched until the first [Backend.Open] call.
func New() *Backend {
	return &Backend{}
}

// Open acquires the default input device and starts frame delivery.
// Only one stream may be open per backend at a time; a second Open while a
// stream is live returns [audio.ErrDeviceUnavailable].
func (b *Backend) Open(cfg audio.CaptureConfig) (audio.Stream, error) {
	b.initOnce.Do(func() {
		b.initErr = portaudio.Initialize()
	})
	if b.initErr != nil {
		return nil, fmt.Errorf("%w: initialise portaudio: %v", audio.ErrDeviceUnavailable, b.initErr)
	}

	b.mu.Lock()
	if b.open {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: capture stream already open", audio.ErrDeviceUnavailable)
	}
	b.open = true
	b.mu.Unlock()

	frameSamples := cfg.SamplesPerFrame() * cfg.Channels
	buf := make([]float32, frameSamples)

	paStream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.SamplesPerFrame(), buf)
	if err != nil {
		b.release()
		return nil, classifyOpenError(err)
	}
	if err := paStream.Start(); err != nil {
		paStream.Close()
		b.release()
		return nil, classifyOpenError(err)
	}

	s := &stream{
		backend:   b,
		pa:        paStream,
		buf:       buf,
		cfg:       cfg,
		frames:    make(chan audio.Frame, 16),
		done:      make(chan struct{}),
		frameStep: time.Duration(cfg.FrameSizeMs) * time.Millisecond,
	}
	go s.loop()

	slog.Info("portaudio capture opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameSizeMs)
	return s, nil
}

func (b *Backend) release() {
	b.mu.Lock()
	b.open = false
	b.mu.Unlock()
}

// Close terminates the PortAudio runtime. Call it once, after every stream
// opened from this backend has been closed.
func (b *Backend) Close() error {
	b.initOnce.Do(func() {
		// Never initialised; nothing to terminate.
		b.initErr = errors.New("portaudio: backend closed before use")
	})
	if b.initErr != nil {
		return nil
	}
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// classifyOpenError maps PortAudio failures onto the capture sentinel errors.
// PortAudio reports OS permission refusals as generic host errors, so the
// mapping is by message inspection.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
}

// stream delivers frames read from the PortAudio blocking API.
type stream struct {
	backend   *Backend
	pa        *portaudio.Stream
	buf       []float32
	cfg       audio.CaptureConfig
	frames    chan audio.Frame
	done      chan struct{}
	frameStep time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Frames() <-chan audio.Frame { return s.frames }

func (s *stream) loop() {
	defer close(s.frames)

	var (
		seq     uint64
		elapsed time.Duration
	)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.pa.Read(); err != nil {
			// Overflows are recoverable; anything else ends the stream.
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("portaudio input overflow, frame dropped")
				continue
			}
			slog.Error("portaudio read failed, ending capture", "err", err)
			return
		}

		pcm := audio.Float32ToPCM(s.buf)
		frame := audio.Frame{
			PCM:        pcm,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Seq:        seq,
			Timestamp:  elapsed,
			Level:      audio.RMSLevel(pcm),
		}
		seq++
		elapsed += s.frameStep

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		default:
			// Consumer is behind; drop rather than stall the device.
			slog.Debug("capture consumer behind, frame dropped", "seq", frame.Seq)
		}
	}
}

// Close stops capture and releases the device.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.pa.Stop(); err != nil {
			s.closeErr = fmt.Errorf("portaudio: stop stream: %w", err)
		}
		if err := s.pa.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("portaudio: close stream: %w", err)
		}
		s.backend.release()
		slog.Info("portaudio capture closed")
	})
	return s.closeErr
}
