// Package mock provides an in-memory mock implementation of
// [chat.Responder] for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonus/pkg/provider/chat"
)

// Responder is a mock implementation of [chat.Responder].
// Set the exported fields before use; inspect the Call* fields after.
type Responder struct {
	mu sync.Mutex

	// Result is returned by Respond when Err is nil.
	Result string

	// Err is returned by Respond when non-nil.
	Err error

	// CallCount records how many times Respond was called.
	CallCount int

	// RecordedMessages holds the history passed to each call, in order.
	RecordedMessages [][]chat.Message
}

var _ chat.Responder = (*Responder)(nil)

// Respond records the call and returns the configured result.
func (r *Responder) Respond(_ context.Context, messages []chat.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CallCount++
	snapshot := make([]chat.Message, len(messages))
	copy(snapshot, messages)
	r.RecordedMessages = append(r.RecordedMessages, snapshot)

	if r.Err != nil {
		return "", r.Err
	}
	return r.Result, nil
}
