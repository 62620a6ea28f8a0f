package deepseek

import (
	"strings"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient("", "deepseek-chat"); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewClientDefaultsModel(t *testing.T) {
	c, err := NewClient("key", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.model != "deepseek-chat" {
		t.Fatalf("expected default model, got %q", c.model)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages("sys", "hello")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected roles: %+v", msgs)
	}

	msgs = buildMessages("  ", "hello")
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("expected user-only messages, got %+v", msgs)
	}
}

func TestFixPromptEmbedsRawOutput(t *testing.T) {
	prompt := fixPrompt([]byte(`{"broken":`))
	if !strings.Contains(prompt, `{"broken":`) {
		t.Fatalf("fix prompt missing raw output: %s", prompt)
	}
}
