package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper-http", "whisper-ws", "whisper-native"},
	"tts":   {"elevenlabs", "coqui"},
	"chat":  {"openai", "anthropic", "ollama", "gemini", "mistral", "groq"},
	"audio": {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSizeMs < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size_ms %d must not be negative", cfg.Audio.FrameSizeMs))
	}
	validateProviderName("audio", cfg.Audio.Backend)

	// VAD
	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.3f is out of range [0, 1]", cfg.VAD.Threshold))
	}
	if cfg.VAD.SilenceTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_timeout_ms %d must not be negative", cfg.VAD.SilenceTimeoutMs))
	}

	// Providers
	sttNamesSeen := make(map[string]int, len(cfg.Providers.STT))
	for i, e := range cfg.Providers.STT {
		prefix := fmt.Sprintf("providers.stt[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := sttNamesSeen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.stt[%d]", prefix, e.Name, prev))
		}
		sttNamesSeen[e.Name] = i
		validateProviderName("stt", e.Name)
	}
	ttsNamesSeen := make(map[string]int, len(cfg.Providers.TTS))
	for i, e := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("providers.tts[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := ttsNamesSeen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.tts[%d]", prefix, e.Name, prev))
		}
		ttsNamesSeen[e.Name] = i
		validateProviderName("tts", e.Name)
	}
	validateProviderName("chat", cfg.Providers.Chat.Name)

	// Provider availability warnings
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("no STT provider configured; speech will not be transcribed")
	}
	if len(cfg.Providers.TTS) == 0 {
		slog.Warn("no TTS provider configured; responses will not be spoken")
	}
	if cfg.Providers.Chat.Name == "" {
		slog.Warn("no chat provider configured; transcripts will not receive responses")
	}

	// Session
	if cfg.Session.MinTurnDurationMs < 0 {
		errs = append(errs, fmt.Errorf("session.min_turn_duration_ms %d must not be negative", cfg.Session.MinTurnDurationMs))
	}
	if cfg.Session.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("session.history_limit %d must not be negative", cfg.Session.HistoryLimit))
	}

	// Resilience
	if cfg.Resilience.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("resilience.failure_threshold %d must not be negative", cfg.Resilience.FailureThreshold))
	}
	if cfg.Resilience.SuccessThreshold < 0 {
		errs = append(errs, fmt.Errorf("resilience.success_threshold %d must not be negative", cfg.Resilience.SuccessThreshold))
	}
	if cfg.Resilience.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("resilience.timeout_seconds %d must not be negative", cfg.Resilience.TimeoutSeconds))
	}
	if cfg.Resilience.MonitoringWindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("resilience.monitoring_window_seconds %d must not be negative", cfg.Resilience.MonitoringWindowSeconds))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
