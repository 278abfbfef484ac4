package vad

import (
	"testing"
	"time"

	"github.com/MrWong99/sonus/internal/clockwork"
)

const frameCadence = 100 * time.Millisecond

func testDetector(t Tuning) (*Detector, *clockwork.Fake) {
	fake := clockwork.NewFake(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return New(Config{Tuning: t, Clock: fake}), fake
}

// feed processes one level and advances the clock by one frame period.
func feed(d *Detector, clock *clockwork.Fake, level float64) Decision {
	dec := d.Process(level)
	clock.Advance(frameCadence)
	return dec
}

func TestSpeechStartEdge(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.05, SilenceTimeout: time.Second})

	// Quiet frames establish the floor without edges.
	for i := 0; i < 10; i++ {
		dec := feed(d, clock, 0.001)
		if dec.Edge != EdgeNone {
			t.Fatalf("quiet frame %d produced edge %v", i, dec.Edge)
		}
		if dec.IsSpeech {
			t.Fatalf("quiet frame %d classified as speech", i)
		}
	}

	dec := feed(d, clock, 0.5)
	if dec.Edge != EdgeSpeechStart {
		t.Fatalf("edge = %v, want speech-start", dec.Edge)
	}
	if !dec.IsSpeech {
		t.Error("IsSpeech = false on speech frame")
	}
	if !d.InSpeech() {
		t.Error("InSpeech() = false after speech-start")
	}
}

func TestSpeechEndRequiresFullTimeout(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.05, SilenceTimeout: time.Second})

	for i := 0; i < 10; i++ {
		feed(d, clock, 0.001)
	}
	feed(d, clock, 0.5)

	// The first quiet frame starts the debounce timer; the following nine
	// bring the elapsed quiet to 900ms. No end edge yet.
	for i := 0; i < 10; i++ {
		dec := feed(d, clock, 0.001)
		if dec.Edge != EdgeNone {
			t.Fatalf("quiet frame %d (before timeout) produced edge %v", i, dec.Edge)
		}
	}

	// The next quiet frame crosses the 1s mark.
	dec := feed(d, clock, 0.001)
	if dec.Edge != EdgeSpeechEnd {
		t.Fatalf("edge = %v, want speech-end after full timeout", dec.Edge)
	}
	if d.InSpeech() {
		t.Error("InSpeech() = true after speech-end")
	}
}

func TestSpeechPauseDoesNotFlap(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.05, SilenceTimeout: time.Second})

	for i := 0; i < 10; i++ {
		feed(d, clock, 0.001)
	}
	feed(d, clock, 0.5)

	// A 500ms pause, then speech resumes: no edges at all.
	for i := 0; i < 5; i++ {
		if dec := feed(d, clock, 0.001); dec.Edge != EdgeNone {
			t.Fatalf("pause frame %d produced edge %v", i, dec.Edge)
		}
	}
	if dec := feed(d, clock, 0.5); dec.Edge != EdgeNone {
		t.Fatalf("resumed speech produced edge %v, want none", dec.Edge)
	}

	// The pause timer restarted: a fresh full timeout is needed to end.
	for i := 0; i < 10; i++ {
		if dec := feed(d, clock, 0.001); dec.Edge != EdgeNone {
			t.Fatalf("quiet frame %d after resume produced edge %v", i, dec.Edge)
		}
	}
	if dec := feed(d, clock, 0.001); dec.Edge != EdgeSpeechEnd {
		t.Fatalf("edge = %v, want speech-end one second after resume stopped", dec.Edge)
	}
}

func TestNoiseFloorAdapts(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.05, SilenceTimeout: time.Second})

	// A noisy room: constant 0.2 background.
	var dec Decision
	for i := 0; i < 50; i++ {
		dec = feed(d, clock, 0.2)
	}
	if dec.NoiseFloor < 0.15 {
		t.Fatalf("NoiseFloor = %v, want it to track the 0.2 background", dec.NoiseFloor)
	}

	// 0.22 is within threshold of the floor: not speech.
	if dec := feed(d, clock, 0.22); dec.IsSpeech {
		t.Error("level barely above a loud floor classified as speech")
	}

	// 0.5 clears the floor by more than the threshold: speech.
	if dec := feed(d, clock, 0.5); !dec.IsSpeech {
		t.Error("level well above floor not classified as speech")
	}
}

func TestSetTuningTakesEffect(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.3, SilenceTimeout: time.Second})

	for i := 0; i < 10; i++ {
		feed(d, clock, 0.001)
	}

	// 0.1 is below the strict threshold.
	if dec := feed(d, clock, 0.1); dec.IsSpeech {
		t.Fatal("IsSpeech = true under strict threshold")
	}

	d.SetTuning(Tuning{Threshold: 0.05})
	if dec := feed(d, clock, 0.1); !dec.IsSpeech {
		t.Fatal("IsSpeech = false after lowering threshold")
	}
}

func TestSetTuningIgnoresZeroValues(t *testing.T) {
	d, _ := testDetector(Tuning{Threshold: 0.07, SilenceTimeout: 2 * time.Second})

	d.SetTuning(Tuning{})

	d.tuningMu.Lock()
	got := d.tuning
	d.tuningMu.Unlock()
	if got.Threshold != 0.07 {
		t.Errorf("Threshold = %v, want 0.07 unchanged", got.Threshold)
	}
	if got.SilenceTimeout != 2*time.Second {
		t.Errorf("SilenceTimeout = %v, want 2s unchanged", got.SilenceTimeout)
	}
}

func TestResetClearsState(t *testing.T) {
	d, clock := testDetector(Tuning{Threshold: 0.05, SilenceTimeout: time.Second})

	for i := 0; i < 10; i++ {
		feed(d, clock, 0.001)
	}
	feed(d, clock, 0.5)
	if !d.InSpeech() {
		t.Fatal("InSpeech() = false before Reset")
	}

	d.Reset()
	if d.InSpeech() {
		t.Error("InSpeech() = true after Reset")
	}
	if len(d.window) != 0 {
		t.Errorf("window length = %d after Reset, want 0", len(d.window))
	}
}

func TestDefaults(t *testing.T) {
	d := New(Config{})
	if d.windowSize != defaultWindowSize {
		t.Errorf("windowSize = %d, want %d", d.windowSize, defaultWindowSize)
	}
	if d.tuning.Threshold != defaultThreshold {
		t.Errorf("Threshold = %v, want %v", d.tuning.Threshold, defaultThreshold)
	}
	if d.tuning.SilenceTimeout != defaultSilenceTimeout {
		t.Errorf("SilenceTimeout = %v, want %v", d.tuning.SilenceTimeout, defaultSilenceTimeout)
	}
}
