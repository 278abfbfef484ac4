package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/MrWong99/sonus/pkg/audio"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Type
	}{
		{"nil error", nil, TypeUnknown},
		{"permission sentinel", audio.ErrPermissionDenied, TypePermissionDenied},
		{"wrapped permission sentinel", fmt.Errorf("open mic: %w", audio.ErrPermissionDenied), TypePermissionDenied},
		{"permission message", errors.New("access not allowed by user"), TypePermissionDenied},
		{"device sentinel", audio.ErrDeviceUnavailable, TypeMicrophoneAccess},
		{"microphone message", errors.New("no microphone found"), TypeMicrophoneAccess},
		{"input device message", errors.New("default input device missing"), TypeMicrophoneAccess},
		{"speaker message", errors.New("speaker init failed"), TypeAudioContext},
		{"recorder message", errors.New("recorder stopped unexpectedly"), TypeMediaRecorder},
		{"capture stream message", errors.New("capture stream closed"), TypeMediaRecorder},
		{"unsupported platform", errors.New("sample format not supported"), TypeBrowserCompatibility},
		{"rate limit", errors.New("429 too many requests"), TypeResourceExhausted},
		{"quota", errors.New("quota exceeded for project"), TypeResourceExhausted},
		{"deadline sentinel", context.DeadlineExceeded, TypeTimeout},
		{"timeout message", errors.New("request timeout after 30s"), TypeTimeout},
		{"net.Error", &net.DNSError{Err: "no such host", IsTimeout: false}, TypeNetworkError},
		{"connection message", errors.New("connection refused"), TypeNetworkError},
		{"websocket message", errors.New("websocket: close 1006"), TypeNetworkError},
		{"transcription message", errors.New("transcription produced no text"), TypeTranscriptionError},
		{"stt message", errors.New("stt backend rejected audio"), TypeTranscriptionError},
		{"synthesis message", errors.New("synthesis failed for segment"), TypeTTSError},
		{"voice message", errors.New("voice id does not exist"), TypeTTSError},
		{"http status", errors.New("unexpected status 500"), TypeAPIError},
		{"api message", errors.New("api returned malformed body"), TypeAPIError},
		{"unmatched", errors.New("something odd happened"), TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifySentinelBeatsMessage(t *testing.T) {
	// The wrapped sentinel must win even though the text mentions the network.
	err := fmt.Errorf("network hiccup while probing: %w", audio.ErrDeviceUnavailable)
	if got := Classify(err); got != TypeMicrophoneAccess {
		t.Errorf("Classify() = %q, want %q", got, TypeMicrophoneAccess)
	}
}

func TestTypeFatal(t *testing.T) {
	fatal := []Type{TypePermissionDenied, TypeBrowserCompatibility}
	for _, typ := range fatal {
		if !typ.Fatal() {
			t.Errorf("%q.Fatal() = false, want true", typ)
		}
	}
	nonFatal := []Type{
		TypeMicrophoneAccess, TypeAudioContext, TypeMediaRecorder,
		TypeNetworkError, TypeAPIError, TypeTranscriptionError, TypeTTSError,
		TypeResourceExhausted, TypeTimeout, TypeUnknown,
	}
	for _, typ := range nonFatal {
		if typ.Fatal() {
			t.Errorf("%q.Fatal() = true, want false", typ)
		}
	}
}
