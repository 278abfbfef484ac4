package config

import "testing"

func TestDiffNoChanges(t *testing.T) {
	old := &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		VAD:    VADConfig{Threshold: 0.05, SilenceTimeoutMs: 1500},
	}
	new := &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		VAD:    VADConfig{Threshold: 0.05, SilenceTimeoutMs: 1500},
	}

	d := Diff(old, new)
	if d.LogLevelChanged {
		t.Error("LogLevelChanged = true, want false")
	}
	if d.VADChanged {
		t.Error("VADChanged = true, want false")
	}
}

func TestDiffLogLevel(t *testing.T) {
	old := &Config{Server: ServerConfig{LogLevel: LogInfo}}
	new := &Config{Server: ServerConfig{LogLevel: LogDebug}}

	d := Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, LogDebug)
	}
}

func TestDiffVADTuning(t *testing.T) {
	old := &Config{VAD: VADConfig{Threshold: 0.05, SilenceTimeoutMs: 1500}}
	new := &Config{VAD: VADConfig{Threshold: 0.1, SilenceTimeoutMs: 1500}}

	d := Diff(old, new)
	if !d.VADChanged {
		t.Fatal("VADChanged = false, want true")
	}
	if d.NewVAD.Threshold != 0.1 {
		t.Errorf("NewVAD.Threshold = %v, want 0.1", d.NewVAD.Threshold)
	}
	if d.NewVAD.SilenceTimeoutMs != 1500 {
		t.Errorf("NewVAD.SilenceTimeoutMs = %d, want 1500", d.NewVAD.SilenceTimeoutMs)
	}
}
