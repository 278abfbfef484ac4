package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// rewriteTransport redirects every request to the test server while keeping
// the original path, so the fixed production endpoint can be exercised.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	return &http.Client{Transport: &rewriteTransport{target: u}}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") error = nil, want error")
	}
}

func TestSynthesize(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	var gotBody requestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write([]byte("fake-mp3"))
	}))
	defer srv.Close()

	p, err := New("key-123",
		WithVoice("voice-42"),
		WithModel("eleven_flash_v2_5"),
		WithStability(0.3),
		WithHTTPClient(testClient(t, srv)))
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	clip, err := p.Synthesize(context.Background(), "good evening")
	if err != nil {
		t.Fatalf("Synthesize() error = %v, want nil", err)
	}
	if clip.Encoding != tts.EncodingMP3 {
		t.Errorf("clip.Encoding = %q, want %q", clip.Encoding, tts.EncodingMP3)
	}
	if string(clip.Data) != "fake-mp3" {
		t.Errorf("clip.Data = %q, want server body", clip.Data)
	}
	if gotPath != "/v1/text-to-speech/voice-42" {
		t.Errorf("request path = %q, want /v1/text-to-speech/voice-42", gotPath)
	}
	if gotKey != "key-123" {
		t.Errorf("xi-api-key = %q, want key-123", gotKey)
	}
	if gotAccept != "audio/mpeg" {
		t.Errorf("Accept = %q, want audio/mpeg", gotAccept)
	}
	if gotBody.Text != "good evening" || gotBody.ModelID != "eleven_flash_v2_5" {
		t.Errorf("request body = %+v, want the text and model", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.3 {
		t.Errorf("stability = %v, want 0.3", gotBody.VoiceSettings.Stability)
	}
}

func TestSynthesize_BlankTextSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("server was called for blank text")
	}))
	defer srv.Close()

	p, _ := New("key", WithHTTPClient(testClient(t, srv)))
	clip, err := p.Synthesize(context.Background(), " \n ")
	if err != nil {
		t.Fatalf("Synthesize() error = %v, want nil", err)
	}
	if len(clip.Data) != 0 {
		t.Errorf("clip.Data = %v, want empty", clip.Data)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New("key", WithHTTPClient(testClient(t, srv)))
	_, err := p.Synthesize(context.Background(), "hi")
	if err == nil {
		t.Fatal("Synthesize() error = nil, want error for status 429")
	}
	if !strings.Contains(err.Error(), "status 429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %v, want status and server detail", err)
	}
}
