// Package chat defines the Responder contract for the conversation backend.
//
// The runtime forwards each finalised transcript, together with the rolling
// in-memory turn history, to a Responder and speaks whatever text comes back.
// Nothing is persisted — the history lives only as long as the session.
//
// Implementations must be safe for concurrent use.
package chat

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role
	Content string
}

// Responder is the abstraction over any chat/completion backend.
type Responder interface {
	// Respond generates the assistant's reply to the conversation so far. The
	// last message is the user's newest utterance. An empty reply with a nil
	// error is valid; the runtime skips synthesis for it.
	Respond(ctx context.Context, messages []Message) (string, error)
}
