// Package whisperhttp provides a batch-HTTP STT provider targeting a
// whisper-server style REST API (POST /inference with a multipart audio file).
//
// The PCM utterance is wrapped in a WAV container and uploaded in one request.
// Response bodies vary between server builds, so transcript extraction accepts
// the common shapes: {"text": ...}, {"transcription": ...}, and
// {"result": {"text": ...}}.
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/sonus/pkg/audio"
	"github.com/MrWong99/sonus/pkg/provider/stt"
)

const (
	inferencePath   = "/inference"
	defaultTimeout  = 30 * time.Second
	defaultLanguage = "en"
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code sent to the server.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements stt.Transcriber against a whisper-server instance.
type Provider struct {
	baseURL  string
	language string
	client   *http.Client
}

// New creates a Provider targeting the whisper-server at baseURL
// (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisperhttp: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the utterance as a WAV file and returns the recognised
// text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, format stt.Format) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	wavData, err := audio.EncodeWAV(pcm, format.SampleRate, format.Channels)
	if err != nil {
		return "", fmt.Errorf("whisperhttp: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisperhttp: build multipart: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("whisperhttp: write audio part: %w", err)
	}
	lang := format.Language
	if lang == "" {
		lang = p.language
	}
	_ = mw.WriteField("language", lang)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisperhttp: finalise multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+inferencePath, &body)
	if err != nil {
		return "", fmt.Errorf("whisperhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperhttp: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisperhttp: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisperhttp: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	text, err := ExtractTranscript(data)
	if err != nil {
		return "", fmt.Errorf("whisperhttp: %w", err)
	}
	return text, nil
}

// ExtractTranscript pulls the transcript out of a whisper-server JSON
// response. It tolerates the three shapes seen in the wild: a top-level
// "text", a top-level "transcription", and a nested "result.text".
func ExtractTranscript(data []byte) (string, error) {
	var payload struct {
		Text          string `json:"text"`
		Transcription string `json:"transcription"`
		Result        struct {
			Text string `json:"text"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, candidate := range []string{payload.Text, payload.Transcription, payload.Result.Text} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s, nil
		}
	}
	return "", nil
}
