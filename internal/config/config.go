// Package config provides the configuration schema, loader, and provider registry
// for the Sonus voice session runtime.
package config

// LogLevel controls log verbosity for the Sonus runtime.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Sonus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Session    SessionConfig    `yaml:"session"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the observability
// endpoint (/metrics, /healthz, /readyz).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	// Backend selects the registered capture backend (e.g., "portaudio").
	Backend string `yaml:"backend"`

	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count. Default: 1.
	Channels int `yaml:"channels"`

	// FrameSizeMs is the frame duration delivered per capture callback,
	// in milliseconds. Default: 100.
	FrameSizeMs int `yaml:"frame_size_ms"`

	// EchoCancellation requests acoustic echo cancellation from the backend
	// where supported.
	EchoCancellation bool `yaml:"echo_cancellation"`

	// NoiseSuppression requests noise suppression from the backend where
	// supported.
	NoiseSuppression bool `yaml:"noise_suppression"`

	// AutoGain requests automatic gain control from the backend where
	// supported.
	AutoGain bool `yaml:"auto_gain"`
}

// VADConfig holds voice activity detection tuning.
type VADConfig struct {
	// Threshold is the speech level threshold above the estimated noise
	// floor, in the range (0, 1]. Default: 0.05.
	Threshold float64 `yaml:"threshold"`

	// SilenceTimeoutMs is the quiet duration after speech before a turn is
	// considered finished, in milliseconds. Default: 1500.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`
}

// ProvidersConfig declares the providers for each pipeline stage.
// STT and TTS are ordered fallback chains: the first entry is primary, later
// entries are tried when earlier ones fail or their circuit opens.
type ProvidersConfig struct {
	STT  []ProviderEntry `yaml:"stt"`
	TTS  []ProviderEntry `yaml:"tts"`
	Chat ProviderEntry   `yaml:"chat"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-http", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "eleven_turbo_v2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SessionConfig holds conversation loop settings.
type SessionConfig struct {
	// SystemPrompt is injected as the first chat message of every session.
	SystemPrompt string `yaml:"system_prompt"`

	// MinTurnDurationMs discards turns whose captured speech is shorter than
	// this, in milliseconds. Default: 300.
	MinTurnDurationMs int `yaml:"min_turn_duration_ms"`

	// HistoryLimit caps the number of chat messages kept in the rolling
	// conversation context. Default: 32.
	HistoryLimit int `yaml:"history_limit"`

	// Language is the BCP-47 language hint forwarded to STT providers.
	Language string `yaml:"language"`
}

// ResilienceConfig holds circuit breaker defaults applied to every provider
// resource.
type ResilienceConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	// Default: 4.
	FailureThreshold int `yaml:"failure_threshold"`

	// SuccessThreshold is the half-open success count that closes a circuit.
	// Default: 2.
	SuccessThreshold int `yaml:"success_threshold"`

	// TimeoutSeconds is how long an open circuit waits before allowing a
	// half-open probe. Default: 45.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MonitoringWindowSeconds bounds how long a failure streak is remembered.
	// Default: 180.
	MonitoringWindowSeconds int `yaml:"monitoring_window_seconds"`
}
