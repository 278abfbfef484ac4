// Package elevenlabs provides an ElevenLabs-backed TTS provider. It speaks
// either the batch REST API (POST /v1/text-to-speech/{voice_id} returning an
// audio/mpeg body) or, with [WithStreaming], the stream-input WebSocket
// endpoint. It implements the tts.Synthesizer interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/sonus/pkg/provider/tts"
)

const (
	endpointFmt    = "https://api.elevenlabs.io/v1/text-to-speech/%s"
	defaultModel   = "eleven_flash_v2_5"
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the voice ID used for synthesis.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voiceID = voiceID }
}

// WithStability sets the voice stability parameter in [0, 1].
func WithStability(v float64) Option {
	return func(p *Provider) { p.stability = v }
}

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithStreaming routes synthesis through the stream-input WebSocket endpoint
// instead of the batch REST call. The result is still a complete clip; the
// chunks are assembled before returning.
func WithStreaming() Option {
	return func(p *Provider) { p.streaming = true }
}

// Provider implements tts.Synthesizer backed by the ElevenLabs REST API.
type Provider struct {
	apiKey    string
	model     string
	voiceID   string
	stability float64
	client    *http.Client
	streaming bool
	wsHost    string
}

// New creates an ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		voiceID:   defaultVoice,
		stability: 0.5,
		client:    &http.Client{Timeout: defaultTimeout},
		wsHost:    defaultWSHost,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// requestBody is the JSON payload for the synthesis endpoint.
type requestBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize sends text to ElevenLabs and returns the MP3 payload.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Clip{Encoding: tts.EncodingMP3}, nil
	}
	if p.streaming {
		return p.synthesizeStream(ctx, text)
	}

	body, err := json.Marshal(requestBody{
		Text:    text,
		ModelID: p.model,
		VoiceSettings: voiceSettings{
			Stability:       p.stability,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	url := fmt.Sprintf(endpointFmt, p.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tts.Clip{}, fmt.Errorf("elevenlabs: server returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: read audio body: %w", err)
	}
	return tts.Clip{Data: data, Encoding: tts.EncodingMP3}, nil
}
