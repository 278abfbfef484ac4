// Package mock provides an in-memory mock implementation of
// [stt.Transcriber] for use in unit tests.
//
// The mock records every call so tests can assert on call counts and the audio
// it received, and exposes exported fields to control return values. Results
// may be scripted per call via the Script field.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonus/pkg/provider/stt"
)

// Transcriber is a mock implementation of [stt.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Script is empty and Err is nil.
	Result string

	// Err is returned by Transcribe when Script is empty and Err is non-nil.
	Err error

	// Script, when non-empty, supplies per-call results in order. Once
	// exhausted, the mock falls back to Result/Err.
	Script []Call

	// CallCount records how many times Transcribe was called.
	CallCount int

	// RecordedPCM holds the audio passed to each call, in order.
	RecordedPCM [][]byte

	// RecordedFormats holds the format passed to each call, in order.
	RecordedFormats []stt.Format
}

// Call is one scripted Transcribe outcome.
type Call struct {
	Result string
	Err    error
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the next scripted outcome.
func (t *Transcriber) Transcribe(_ context.Context, pcm []byte, format stt.Format) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.CallCount
	t.CallCount++
	t.RecordedPCM = append(t.RecordedPCM, pcm)
	t.RecordedFormats = append(t.RecordedFormats, format)

	if idx < len(t.Script) {
		return t.Script[idx].Result, t.Script[idx].Err
	}
	return t.Result, t.Err
}
