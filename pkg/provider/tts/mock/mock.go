// Package mock provides an in-memory mock implementation of
// [tts.Synthesizer] for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// Synthesizer is a mock implementation of [tts.Synthesizer].
// Set the exported fields before use; inspect the Call* fields after.
type Synthesizer struct {
	mu sync.Mutex

	// Result is returned by Synthesize when Err is nil.
	Result tts.Clip

	// Err is returned by Synthesize when non-nil.
	Err error

	// Delay, when non-zero, makes Synthesize block until the context is
	// cancelled or the delay channel is closed — used to test barge-in
	// cancellation of in-flight synthesis.
	Delay <-chan struct{}

	// CallCount records how many times Synthesize was called.
	CallCount int

	// RecordedTexts holds the text passed to each call, in order.
	RecordedTexts []string
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call and returns the configured result.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Clip, error) {
	s.mu.Lock()
	s.CallCount++
	s.RecordedTexts = append(s.RecordedTexts, text)
	delay := s.Delay
	s.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return tts.Clip{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return tts.Clip{}, s.Err
	}
	return s.Result, nil
}
