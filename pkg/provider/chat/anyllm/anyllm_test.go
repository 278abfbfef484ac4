package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sonus/pkg/provider/chat"
)

// ── convertMessages ───────────────────────────────────────────────────────────

func TestConvertMessages(t *testing.T) {
	in := []chat.Message{
		{Role: chat.RoleSystem, Content: "You are helpful."},
		{Role: chat.RoleUser, Content: "Hello!"},
		{Role: chat.RoleAssistant, Content: "Hi there!"},
	}
	got := convertMessages(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	wantRoles := []string{anyllmlib.RoleSystem, anyllmlib.RoleUser, anyllmlib.RoleAssistant}
	for i, m := range got {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
		if m.Content != in[i].Content {
			t.Errorf("message %d content = %q, want %q", i, m.Content, in[i].Content)
		}
	}
}

// TestConvertMessages_UnknownRole checks that unrecognised roles fall back to user.
func TestConvertMessages_UnknownRole(t *testing.T) {
	got := convertMessages([]chat.Message{{Role: "tool", Content: "result"}})
	if got[0].Role != anyllmlib.RoleUser {
		t.Errorf("unknown role mapped to %q, want user", got[0].Role)
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNew_Anthropic_WithAPIKey(t *testing.T) {
	p, err := New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "claude-sonnet-4-5" {
		t.Errorf("expected model claude-sonnet-4-5, got %q", p.model)
	}
}

// TestNew_Ollama_NoAPIKey checks that the local backend works without a key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}
