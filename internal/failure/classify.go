// Package failure centralises error classification and recovery for the voice
// runtime. Every external-call failure — capture, VAD, transcription, chat,
// synthesis — funnels through [Classify] and then [Planner.Recover] instead of
// being handled ad hoc at the call site.
package failure

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/MrWong99/sonus/pkg/audio"
)

// Type is the classification taxonomy. Every failure maps to exactly one Type.
type Type string

const (
	TypeMicrophoneAccess     Type = "microphone-access"
	TypeAudioContext         Type = "audio-context"
	TypeMediaRecorder        Type = "media-recorder"
	TypeNetworkError         Type = "network"
	TypeAPIError             Type = "api"
	TypeTranscriptionError   Type = "transcription"
	TypeTTSError             Type = "tts"
	TypePermissionDenied     Type = "permission-denied"
	TypeBrowserCompatibility Type = "compatibility"
	TypeResourceExhausted    Type = "resource-exhausted"
	TypeTimeout              Type = "timeout"
	TypeUnknown              Type = "unknown"
)

// Fatal reports whether the type has no safe automated remedy and must always
// surface to the user.
func (t Type) Fatal() bool {
	return t == TypePermissionDenied || t == TypeBrowserCompatibility
}

// Context records one classified failure. Instances are appended to the
// per-type history ring the planner uses for its rate-of-failure guard.
type Context struct {
	Type             Type
	Err              error
	Timestamp        time.Time
	RecoveryAttempts int

	// Stage names the pipeline stage that produced the failure (e.g.
	// "transcribe", "synthesize", "chat", "capture").
	Stage string
}

// classifierRule pairs a predicate with the type it yields. Rules are ordered
// most-specific first; the first match wins.
type classifierRule struct {
	match func(err error, msg string) bool
	typ   Type
}

var rules = []classifierRule{
	{func(err error, _ string) bool { return errors.Is(err, audio.ErrPermissionDenied) }, TypePermissionDenied},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "permission") || strings.Contains(msg, "not allowed")
	}, TypePermissionDenied},
	{func(err error, _ string) bool { return errors.Is(err, audio.ErrDeviceUnavailable) }, TypeMicrophoneAccess},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "microphone") || strings.Contains(msg, "input device")
	}, TypeMicrophoneAccess},
	{func(_ error, msg string) bool { return strings.Contains(msg, "audio context") || strings.Contains(msg, "speaker") }, TypeAudioContext},
	{func(_ error, msg string) bool { return strings.Contains(msg, "recorder") || strings.Contains(msg, "capture stream") }, TypeMediaRecorder},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "not supported") || strings.Contains(msg, "unsupported platform")
	}, TypeBrowserCompatibility},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "insufficient")
	}, TypeResourceExhausted},
	{func(err error, msg string) bool {
		return errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
	}, TypeTimeout},
	{func(err error, msg string) bool {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		return strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "dial") || strings.Contains(msg, "websocket")
	}, TypeNetworkError},
	{func(_ error, msg string) bool { return strings.Contains(msg, "transcri") || strings.Contains(msg, "stt") }, TypeTranscriptionError},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "synthes") || strings.Contains(msg, "tts") || strings.Contains(msg, "voice")
	}, TypeTTSError},
	{func(_ error, msg string) bool {
		return strings.Contains(msg, "status 4") || strings.Contains(msg, "status 5") || strings.Contains(msg, "api")
	}, TypeAPIError},
}

// Classify maps err onto the taxonomy. Sentinel errors are matched first, then
// message patterns in specificity order. A nil error yields TypeUnknown.
func Classify(err error) Type {
	if err == nil {
		return TypeUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.match(err, msg) {
			return r.typ
		}
	}
	return TypeUnknown
}
