package native

import (
	"bytes"
	"testing"
)

func TestNew_RequiresModelPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") error = nil, want error")
	}
}

func TestDownmix(t *testing.T) {
	// Two stereo frames: (100, 200) and (-100, 300).
	stereo := []byte{
		100, 0, 200, 0,
		156, 255, 44, 1,
	}
	want := []byte{
		150, 0, // (100+200)/2
		100, 0, // (-100+300)/2
	}
	got := downmix(stereo, 2)
	if !bytes.Equal(got, want) {
		t.Errorf("downmix() = %v, want %v", got, want)
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	mono := []byte{1, 2, 3, 4}
	if got := downmix(mono, 1); !bytes.Equal(got, mono) {
		t.Errorf("downmix(mono) = %v, want input unchanged", got)
	}
}
