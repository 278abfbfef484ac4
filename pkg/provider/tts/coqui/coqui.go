// Package coqui provides a local Coqui TTS-backed provider that connects to a
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) via its REST API
// (GET /api/tts with URL query parameters, returning a WAV body). It
// implements the tts.Synthesizer interface and is the usual offline fallback
// behind a cloud voice.
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/sonus/pkg/provider/tts"
)

const (
	apiTTSEndpoint = "/api/tts"
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithSpeaker sets the speaker ID forwarded to multi-speaker models.
func WithSpeaker(speakerID string) Option {
	return func(p *Provider) { p.speakerID = speakerID }
}

// WithLanguage sets the language ID forwarded to multilingual models.
func WithLanguage(languageID string) Option {
	return func(p *Provider) { p.languageID = languageID }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements tts.Synthesizer against a Coqui TTS server.
type Provider struct {
	baseURL    string
	speakerID  string
	languageID string
	client     *http.Client
}

// New creates a Provider targeting the Coqui server at baseURL
// (e.g. "http://localhost:5002").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize requests WAV audio for text from the Coqui server.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Clip{Encoding: tts.EncodingWAV}, nil
	}

	q := url.Values{}
	q.Set("text", text)
	if p.speakerID != "" {
		q.Set("speaker_id", p.speakerID)
	}
	if p.languageID != "" {
		q.Set("language_id", p.languageID)
	}

	reqURL := p.baseURL + apiTTSEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tts.Clip{}, fmt.Errorf("coqui: server returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: read audio body: %w", err)
	}
	return tts.Clip{Data: data, Encoding: tts.EncodingWAV}, nil
}
