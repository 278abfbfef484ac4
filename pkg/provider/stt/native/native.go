// Package native provides an in-process STT provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// The model is loaded once at construction and shared across calls; each
// Transcribe creates its own whisper context so concurrent calls do not
// interfere.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/sonus/pkg/audio"
	"github.com/MrWong99/sonus/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code (e.g. "en"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements stt.Transcriber with an in-process whisper.cpp model.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("native: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("native: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs batch inference on the utterance and returns the joined
// segment text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, format stt.Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}

	samples := audio.PCMToFloat32(downmix(pcm, format.Channels))

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("native: create context: %w", err)
	}
	lang := format.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("native: set language %q: %w", lang, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("native: process audio: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("native: read segment: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(segment.Text))
	}
	return strings.TrimSpace(sb.String()), nil
}

// downmix averages interleaved multi-channel 16-bit PCM to mono. whisper.cpp
// expects mono input.
func downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]byte, frames*2)
	for i := range frames {
		var sum int
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int(int16(uint16(pcm[idx]) | uint16(pcm[idx+1])<<8))
		}
		v := int16(sum / channels)
		mono[i*2] = byte(uint16(v))
		mono[i*2+1] = byte(uint16(v) >> 8)
	}
	return mono
}
