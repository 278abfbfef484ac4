package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/sonus/internal/config"
	"github.com/MrWong99/sonus/internal/session"
	"github.com/MrWong99/sonus/pkg/audio"
	audiomock "github.com/MrWong99/sonus/pkg/audio/mock"
	"github.com/MrWong99/sonus/pkg/provider/chat"
	chatmock "github.com/MrWong99/sonus/pkg/provider/chat/mock"
	"github.com/MrWong99/sonus/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonus/pkg/provider/stt/mock"
	"github.com/MrWong99/sonus/pkg/provider/tts"
	ttsmock "github.com/MrWong99/sonus/pkg/provider/tts/mock"
)

// testConfig returns a minimal config naming one provider per stage.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Audio.Backend = "mock"
	cfg.Providers.STT = []config.ProviderEntry{{Name: "stt-a"}}
	cfg.Providers.TTS = []config.ProviderEntry{{Name: "tts-a"}}
	cfg.Providers.Chat = config.ProviderEntry{Name: "chat-a"}
	return cfg
}

// testRegistry returns a config registry with mock factories for testConfig.
func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterCapture("mock", func(config.AudioConfig) (audio.Capture, error) {
		return &audiomock.Capture{OpenResult: audiomock.NewStream(4)}, nil
	})
	reg.RegisterSTT("stt-a", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Result: "hello"}, nil
	})
	reg.RegisterTTS("tts-a", func(config.ProviderEntry) (tts.Synthesizer, error) {
		return &ttsmock.Synthesizer{Result: tts.Clip{Data: []byte{1}, Encoding: tts.EncodingWAV}}, nil
	})
	reg.RegisterChat("chat-a", func(config.ProviderEntry) (chat.Responder, error) {
		return &chatmock.Responder{Result: "hi"}, nil
	})
	return reg
}

func TestNewWiresSubsystems(t *testing.T) {
	a, err := New(context.Background(), testConfig(), testRegistry(), WithPlayer(&ttsPlayerStub{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if a.registry.ActiveSTT() != "stt-a" {
		t.Errorf("ActiveSTT() = %q, want %q", a.registry.ActiveSTT(), "stt-a")
	}
	if a.registry.ActiveTTS() != "tts-a" {
		t.Errorf("ActiveTTS() = %q, want %q", a.registry.ActiveTTS(), "tts-a")
	}
	if a.machine == nil {
		t.Error("machine not initialised")
	}
	if a.Bus() == nil {
		t.Error("Bus() = nil")
	}
}

func TestNewSkipsUnregisteredProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.STT = append(cfg.Providers.STT, config.ProviderEntry{Name: "not-built"})

	a, err := New(context.Background(), cfg, testRegistry(), WithPlayer(&ttsPlayerStub{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.registry.ActiveSTT() != "stt-a" {
		t.Errorf("ActiveSTT() = %q, want %q", a.registry.ActiveSTT(), "stt-a")
	}
}

func TestNewFailsOnUnknownCaptureBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.Backend = "missing"

	_, err := New(context.Background(), cfg, testRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("New() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestSwitchProviderStageRouting(t *testing.T) {
	newApp := func(t *testing.T) *App {
		t.Helper()
		cfg := testConfig()
		cfg.Providers.STT = append(cfg.Providers.STT, config.ProviderEntry{Name: "stt-b"})
		cfg.Providers.TTS = append(cfg.Providers.TTS, config.ProviderEntry{Name: "tts-b"})
		reg := testRegistry()
		reg.RegisterSTT("stt-b", func(config.ProviderEntry) (stt.Transcriber, error) {
			return &sttmock.Transcriber{Result: "backup"}, nil
		})
		reg.RegisterTTS("tts-b", func(config.ProviderEntry) (tts.Synthesizer, error) {
			return &ttsmock.Synthesizer{Result: tts.Clip{Data: []byte{2}, Encoding: tts.EncodingWAV}}, nil
		})

		a, err := New(context.Background(), cfg, reg, WithPlayer(&ttsPlayerStub{}))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return a
	}

	// Stage names here are the ones the session loop attaches to turn
	// failures, plus the provider-kind aliases.
	tests := []struct {
		stage   string
		wantSTT string
		wantTTS string
	}{
		{stage: session.StageTranscribe, wantSTT: "stt-b", wantTTS: "tts-a"},
		{stage: "stt", wantSTT: "stt-b", wantTTS: "tts-a"},
		{stage: session.StageSynthesize, wantSTT: "stt-a", wantTTS: "tts-b"},
		{stage: session.StagePlayback, wantSTT: "stt-a", wantTTS: "tts-b"},
		{stage: "tts", wantSTT: "stt-a", wantTTS: "tts-b"},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			a := newApp(t)
			if err := a.SwitchProvider(context.Background(), tt.stage); err != nil {
				t.Fatalf("SwitchProvider(%s) error = %v", tt.stage, err)
			}
			if got := a.registry.ActiveSTT(); got != tt.wantSTT {
				t.Errorf("ActiveSTT() = %q, want %q", got, tt.wantSTT)
			}
			if got := a.registry.ActiveTTS(); got != tt.wantTTS {
				t.Errorf("ActiveTTS() = %q, want %q", got, tt.wantTTS)
			}
		})
	}

	a := newApp(t)
	err := a.SwitchProvider(context.Background(), session.StageChat)
	if err == nil || !strings.Contains(err.Error(), "chat") {
		t.Errorf("SwitchProvider(chat) error = %v, want unswitchable-stage error", err)
	}
}

func TestClipPlayerUnsupportedEncoding(t *testing.T) {
	p := &clipPlayer{}
	err := p.Play(context.Background(), tts.Clip{Data: []byte{1}, Encoding: "ogg"})
	if err == nil {
		t.Fatal("Play() with unknown encoding expected error, got nil")
	}
}

// ttsPlayerStub satisfies session.Player without touching the speaker.
type ttsPlayerStub struct{}

func (*ttsPlayerStub) Play(ctx context.Context, clip tts.Clip) error { return nil }
