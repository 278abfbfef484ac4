package whisperhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/sonus/pkg/provider/stt"
)

var testFormat = stt.Format{SampleRate: 16000, Channels: 1}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") error = nil, want error")
	}
}

func TestTranscribe(t *testing.T) {
	var gotPath, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotLang = r.FormValue("language")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
		} else {
			defer file.Close()
			if header.Filename != "utterance.wav" {
				t.Errorf("upload filename = %q, want utterance.wav", header.Filename)
			}
			magic := make([]byte, 4)
			if _, err := file.Read(magic); err != nil || string(magic) != "RIFF" {
				t.Errorf("upload magic = %q (err %v), want RIFF", magic, err)
			}
		}
		w.Write([]byte(`{"text": " hello world \n"}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithLanguage("de"))
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	text, err := p.Transcribe(context.Background(), make([]byte, 3200), testFormat)
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if text != "hello world" {
		t.Errorf("Transcribe() = %q, want %q", text, "hello world")
	}
	if gotPath != "/inference" {
		t.Errorf("request path = %q, want /inference", gotPath)
	}
	if gotLang != "de" {
		t.Errorf("language field = %q, want %q (configured default)", gotLang, "de")
	}
}

func TestTranscribe_FormatLanguageWins(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotLang = r.FormValue("language")
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithLanguage("de"))
	format := testFormat
	format.Language = "fr"
	if _, err := p.Transcribe(context.Background(), make([]byte, 320), format); err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if gotLang != "fr" {
		t.Errorf("language field = %q, want %q", gotLang, "fr")
	}
}

func TestTranscribe_EmptyUtteranceSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("server was called for an empty utterance")
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	text, err := p.Transcribe(context.Background(), nil, testFormat)
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil", err)
	}
	if text != "" {
		t.Errorf("Transcribe() = %q, want empty", text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	_, err := p.Transcribe(context.Background(), make([]byte, 320), testFormat)
	if err == nil {
		t.Fatal("Transcribe() error = nil, want error for status 500")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want mention of status 500", err)
	}
}

func TestExtractTranscript(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"top-level text", `{"text":"hello"}`, "hello", false},
		{"transcription field", `{"transcription":"guten tag"}`, "guten tag", false},
		{"nested result", `{"result":{"text":"bonjour"}}`, "bonjour", false},
		{"text wins over transcription", `{"text":"a","transcription":"b"}`, "a", false},
		{"whitespace trimmed", `{"text":"  hi \n"}`, "hi", false},
		{"all empty", `{}`, "", false},
		{"malformed json", `{"text":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTranscript([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractTranscript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractTranscript() = %q, want %q", got, tt.want)
			}
		})
	}
}
