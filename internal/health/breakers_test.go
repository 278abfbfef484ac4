package health

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/sonus/internal/resilience"
)

func TestBreakersCheckerHealthy(t *testing.T) {
	reg := resilience.NewRegistry(resilience.Config{})
	reg.Get("stt/whisper-http")

	c := Breakers(reg)
	if c.Name != "breakers" {
		t.Errorf("Name = %q, want %q", c.Name, "breakers")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}
}

func TestBreakersCheckerOpenCircuit(t *testing.T) {
	reg := resilience.NewRegistry(resilience.Config{FailureThreshold: 1})
	cb := reg.Get("tts/elevenlabs")

	failing := errors.New("synth down")
	if err := cb.Execute(func() error { return failing }, nil); !errors.Is(err, failing) {
		t.Fatalf("Execute() error = %v, want %v", err, failing)
	}

	err := Breakers(reg).Check(context.Background())
	if err == nil {
		t.Fatal("Check() error = nil, want open-circuit failure")
	}
	if !strings.Contains(err.Error(), "tts/elevenlabs") {
		t.Errorf("Check() error = %q, want mention of tts/elevenlabs", err)
	}
}
