package openai

import (
	"testing"

	"github.com/MrWong99/sonus/pkg/provider/chat"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New() without apiKey error = nil, want error")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("New() without model error = nil, want error")
	}
	if _, err := New("key", "gpt-4o-mini", WithBaseURL("http://localhost:11434/v1")); err != nil {
		t.Errorf("New() error = %v, want nil", err)
	}
}

func TestConvertMessages(t *testing.T) {
	msgs := convertMessages([]chat.Message{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi"},
		{Role: chat.Role("other"), Content: "fallback"},
	})
	if len(msgs) != 4 {
		t.Fatalf("converted %d messages, want 4", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Error("message 0 is not a system message")
	}
	if msgs[1].OfUser == nil {
		t.Error("message 1 is not a user message")
	}
	if msgs[2].OfAssistant == nil {
		t.Error("message 2 is not an assistant message")
	}
	if msgs[3].OfUser == nil {
		t.Error("unknown role did not default to a user message")
	}
}
