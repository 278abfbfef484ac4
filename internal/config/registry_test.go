package config

import (
	"errors"
	"testing"

	"github.com/MrWong99/sonus/pkg/provider/stt"
	sttmock "github.com/MrWong99/sonus/pkg/provider/stt/mock"
)

func TestRegistryCreateSTT(t *testing.T) {
	r := NewRegistry()
	var gotEntry ProviderEntry
	r.RegisterSTT("whisper-http", func(e ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return &sttmock.Transcriber{}, nil
	})

	entry := ProviderEntry{Name: "whisper-http", BaseURL: "http://localhost:8178"}
	p, err := r.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT() error = %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT() returned nil provider")
	}
	if gotEntry.BaseURL != "http://localhost:8178" {
		t.Errorf("factory received BaseURL %q, want %q", gotEntry.BaseURL, "http://localhost:8178")
	}
}

func TestRegistryCreateUnregistered(t *testing.T) {
	r := NewRegistry()

	_, err := r.CreateSTT(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT() error = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateTTS(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTTS() error = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateChat(ProviderEntry{Name: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateChat() error = %v, want ErrProviderNotRegistered", err)
	}
	_, err = r.CreateCapture(AudioConfig{Backend: "nope"})
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateCapture() error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	r := NewRegistry()
	first := &sttmock.Transcriber{Result: "first"}
	second := &sttmock.Transcriber{Result: "second"}

	r.RegisterSTT("whisper-http", func(ProviderEntry) (stt.Transcriber, error) { return first, nil })
	r.RegisterSTT("whisper-http", func(ProviderEntry) (stt.Transcriber, error) { return second, nil })

	p, err := r.CreateSTT(ProviderEntry{Name: "whisper-http"})
	if err != nil {
		t.Fatalf("CreateSTT() error = %v", err)
	}
	if p != second {
		t.Error("CreateSTT() returned provider from first registration, want second")
	}
}
