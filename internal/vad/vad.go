// Package vad implements energy-based voice activity detection with an
// adaptive noise floor and hysteresis edge detection.
//
// The detector consumes the per-frame RMS level produced by the capture layer
// and emits speech-start / speech-end edges. The noise floor is estimated as
// the 10th percentile of a rolling window of recent levels so the threshold
// tracks the ambient environment; edge detection is debounced so natural
// speech pauses do not flap the state: a speech-end edge is only emitted after
// the level has stayed below threshold continuously for the configured silence
// timeout.
//
// Detector is driven synchronously from the session event loop and is not safe
// for concurrent use. Tuning updates via [Detector.SetTuning] are the one
// exception and may come from any goroutine.
package vad

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/sonus/internal/clockwork"
)

// Edge is a speech boundary detected in the level stream.
type Edge int

const (
	// EdgeNone means the frame produced no transition.
	EdgeNone Edge = iota

	// EdgeSpeechStart marks the first speech frame after a quiet period.
	EdgeSpeechStart

	// EdgeSpeechEnd marks the end of an utterance, emitted only after the
	// silence timeout has elapsed without further speech.
	EdgeSpeechEnd
)

// String returns the human-readable name of the edge.
func (e Edge) String() string {
	switch e {
	case EdgeSpeechStart:
		return "speech-start"
	case EdgeSpeechEnd:
		return "speech-end"
	default:
		return "none"
	}
}

// Decision is the per-frame detection result.
type Decision struct {
	// Level is the frame's RMS energy as supplied by the caller.
	Level float64

	// NoiseFloor is the current ambient noise estimate.
	NoiseFloor float64

	// IsSpeech reports whether the frame cleared the speech threshold.
	IsSpeech bool

	// Edge is the transition triggered by this frame, if any.
	Edge Edge
}

// Tuning holds the runtime-adjustable detector parameters.
type Tuning struct {
	// Threshold is the margin above the noise floor a level must clear to
	// count as speech. Typical: 0.02–0.08 for normalised RMS levels.
	Threshold float64

	// SilenceTimeout is how long the level must stay below threshold before a
	// speech-end edge is emitted. Typical: 1.5–2 s.
	SilenceTimeout time.Duration
}

// Config configures a [Detector].
type Config struct {
	// Tuning is the initial threshold and silence timeout.
	Tuning Tuning

	// WindowSize is the number of recent levels kept for noise-floor
	// estimation. Default: 50 (≈5 s at 100 ms frame cadence).
	WindowSize int

	// Clock supplies time for the silence debounce. Defaults to the wall
	// clock.
	Clock clockwork.Clock
}

const (
	defaultWindowSize     = 50
	defaultThreshold      = 0.05
	defaultSilenceTimeout = 1500 * time.Millisecond

	// noiseFloorPercentile selects which window percentile is treated as the
	// ambient floor. The 10th percentile tracks the quietest recent frames
	// without being dragged down by a single dead sample.
	noiseFloorPercentile = 0.10
)

// Detector turns a stream of frame levels into debounced speech edges.
type Detector struct {
	clock clockwork.Clock

	tuningMu sync.Mutex
	tuning   Tuning

	window     []float64
	windowSize int
	sorted     []float64 // scratch for percentile computation

	inSpeech     bool
	quietSince   time.Time
	pendingQuiet bool
}

// New creates a Detector. Zero-value config fields are replaced with defaults.
func New(cfg Config) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.Tuning.Threshold <= 0 {
		cfg.Tuning.Threshold = defaultThreshold
	}
	if cfg.Tuning.SilenceTimeout <= 0 {
		cfg.Tuning.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.Real{}
	}
	return &Detector{
		clock:      cfg.Clock,
		tuning:     cfg.Tuning,
		window:     make([]float64, 0, cfg.WindowSize),
		windowSize: cfg.WindowSize,
		sorted:     make([]float64, 0, cfg.WindowSize),
	}
}

// SetTuning replaces the threshold and silence timeout without restarting
// capture. Safe to call from any goroutine; takes effect on the next frame.
func (d *Detector) SetTuning(t Tuning) {
	d.tuningMu.Lock()
	defer d.tuningMu.Unlock()
	if t.Threshold > 0 {
		d.tuning.Threshold = t.Threshold
	}
	if t.SilenceTimeout > 0 {
		d.tuning.SilenceTimeout = t.SilenceTimeout
	}
	slog.Debug("vad tuning updated",
		"threshold", d.tuning.Threshold,
		"silence_timeout", d.tuning.SilenceTimeout)
}

// Process consumes one frame level and returns the per-frame decision,
// including any speech edge it triggered.
func (d *Detector) Process(level float64) Decision {
	d.tuningMu.Lock()
	tuning := d.tuning
	d.tuningMu.Unlock()

	d.pushLevel(level)
	floor := d.noiseFloor()
	isSpeech := (level - floor) > tuning.Threshold

	dec := Decision{
		Level:      level,
		NoiseFloor: floor,
		IsSpeech:   isSpeech,
		Edge:       EdgeNone,
	}

	now := d.clock.Now()
	switch {
	case isSpeech && !d.inSpeech:
		d.inSpeech = true
		d.pendingQuiet = false
		dec.Edge = EdgeSpeechStart

	case isSpeech && d.inSpeech:
		// Speech resumed before the timeout; cancel any pending end.
		d.pendingQuiet = false

	case !isSpeech && d.inSpeech:
		if !d.pendingQuiet {
			d.pendingQuiet = true
			d.quietSince = now
		} else if now.Sub(d.quietSince) >= tuning.SilenceTimeout {
			d.inSpeech = false
			d.pendingQuiet = false
			dec.Edge = EdgeSpeechEnd
		}
	}
	return dec
}

// Reset clears speech state and the noise window, e.g. after the capture
// stream restarts.
func (d *Detector) Reset() {
	d.window = d.window[:0]
	d.inSpeech = false
	d.pendingQuiet = false
}

// InSpeech reports whether the detector currently considers speech active.
func (d *Detector) InSpeech() bool { return d.inSpeech }

func (d *Detector) pushLevel(level float64) {
	if len(d.window) == d.windowSize {
		copy(d.window, d.window[1:])
		d.window[len(d.window)-1] = level
		return
	}
	d.window = append(d.window, level)
}

// noiseFloor returns the 10th percentile of the rolling window. With too few
// samples the lowest observed level is used.
func (d *Detector) noiseFloor() float64 {
	if len(d.window) == 0 {
		return 0
	}
	d.sorted = append(d.sorted[:0], d.window...)
	sort.Float64s(d.sorted)
	idx := int(float64(len(d.sorted)) * noiseFloorPercentile)
	if idx >= len(d.sorted) {
		idx = len(d.sorted) - 1
	}
	return d.sorted[idx]
}
