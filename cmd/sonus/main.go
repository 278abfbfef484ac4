// Command sonus is the main entry point for the Sonus voice session runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sonus/internal/app"
	"github.com/MrWong99/sonus/internal/config"
	"github.com/MrWong99/sonus/internal/observe"
	"github.com/MrWong99/sonus/pkg/audio"
	"github.com/MrWong99/sonus/pkg/audio/portaudio"
	"github.com/MrWong99/sonus/pkg/provider/chat"
	"github.com/MrWong99/sonus/pkg/provider/chat/anyllm"
	openaichat "github.com/MrWong99/sonus/pkg/provider/chat/openai"
	"github.com/MrWong99/sonus/pkg/provider/stt"
	"github.com/MrWong99/sonus/pkg/provider/stt/native"
	"github.com/MrWong99/sonus/pkg/provider/stt/whisperhttp"
	"github.com/MrWong99/sonus/pkg/provider/stt/wsstream"
	"github.com/MrWong99/sonus/pkg/provider/tts"
	"github.com/MrWong99/sonus/pkg/provider/tts/coqui"
	"github.com/MrWong99/sonus/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// .env is optional; API keys can come from it or the process environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "sonus: load .env: %v\n", err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sonus: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sonus: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(logLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sonus starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sonus"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(logLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.VADChanged {
			application.ApplyVAD(d.NewVAD)
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("runtime ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Sonus. Used for startup logging.
var builtinProviders = map[string][]string{
	"stt":   {"whisper-http", "whisper-ws", "whisper-native"},
	"tts":   {"elevenlabs", "coqui"},
	"chat":  {"openai", "anthropic", "gemini", "ollama", "mistral", "groq"},
	"audio": {"portaudio"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-http", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisperhttp.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperhttp.WithLanguage(lang))
		}
		return whisperhttp.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-ws", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []wsstream.Option
		if key := apiKey(entry, ""); key != "" {
			opts = append(opts, wsstream.WithHeaderToken(key))
		}
		return wsstream.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []native.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, native.WithLanguage(lang))
		}
		return native.New(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if optBool(entry.Options, "streaming") {
			opts = append(opts, elevenlabs.WithStreaming())
		}
		return elevenlabs.New(apiKey(entry, "ELEVENLABS_API_KEY"), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if speaker := optString(entry.Options, "speaker_id"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("openai", func(entry config.ProviderEntry) (chat.Responder, error) {
		var opts []openaichat.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaichat.WithBaseURL(entry.BaseURL))
		}
		return openaichat.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	// anthropic, gemini, mistral, groq share the key+URL pattern via any-llm.
	for _, providerName := range []string{"anthropic", "gemini", "mistral", "groq"} {
		reg.RegisterChat(providerName, func(entry config.ProviderEntry) (chat.Responder, error) {
			var opts []anyllmlib.Option
			if key := apiKey(entry, ""); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterChat("ollama", func(entry config.ProviderEntry) (chat.Responder, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Audio capture ─────────────────────────────────────────────────────────

	reg.RegisterCapture("portaudio", func(config.AudioConfig) (audio.Capture, error) {
		return portaudio.New(), nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// apiKey returns the entry's key, falling back to the named environment
// variable when the config leaves it empty.
func apiKey(entry config.ProviderEntry, envVar string) string {
	if entry.APIKey != "" {
		return entry.APIKey
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// optString fetches a string value from a provider options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// optBool fetches a boolean value from a provider options map.
func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	v, _ := opts[key].(bool)
	return v
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Sonus — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProviderChain("STT", cfg.Providers.STT)
	printProviderChain("TTS", cfg.Providers.TTS)
	printProvider("Chat", cfg.Providers.Chat.Name, cfg.Providers.Chat.Model)
	printProvider("Audio", cfg.Audio.Backend, "")
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr : %-22s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProviderChain(kind string, entries []config.ProviderEntry) {
	if len(entries) == 0 {
		printProvider(kind, "", "")
		return
	}
	for i, e := range entries {
		label := kind
		if i > 0 {
			label = kind + " (fb)"
		}
		printProvider(label, e.Name, e.Model)
	}
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 22 {
		value = value[:19] + "…"
	}
	fmt.Printf("║  %-8s    : %-22s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
