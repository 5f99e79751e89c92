package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClaudeCLI_Complete(t *testing.T) {
	var gotName string
	var gotArgs []string
	c := NewClaudeCLI("", time.Second)
	c.SetExec(func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotName, gotArgs = name, args
		return []byte("  {\"ok\": true}\n"), nil, nil
	})

	out, err := c.Complete(context.Background(), "be terse", "what broke?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok": true}` {
		t.Errorf("out = %q", out)
	}
	if gotName != "claude" {
		t.Errorf("name = %q", gotName)
	}
	if len(gotArgs) != 4 || gotArgs[0] != "--print" || gotArgs[2] != "haiku" {
		t.Fatalf("args = %v", gotArgs)
	}
	if !strings.Contains(gotArgs[3], "be terse") || !strings.Contains(gotArgs[3], "what broke?") {
		t.Errorf("prompt missing system or user text: %q", gotArgs[3])
	}
}

func TestClaudeCLI_RateLimited(t *testing.T) {
	c := NewClaudeCLI("sonnet", time.Second)
	c.SetExec(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("API Error: 429 Too Many Requests"), errors.New("exit status 1")
	})
	_, err := c.Complete(context.Background(), "", "x")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rl.Provider != "claude-cli" {
		t.Errorf("Provider = %q", rl.Provider)
	}
}

func TestClaudeCLI_EmptyOutput(t *testing.T) {
	c := NewClaudeCLI("", time.Second)
	c.SetExec(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return []byte("   "), nil, nil
	})
	if _, err := c.Complete(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestIsThrottled(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"ThrottlingException: slow down", true},
		{"Rate limit reached", true},
		{"RESOURCE_EXHAUSTED", true},
		{"HTTP 429", true},
		{"invalid api key", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isThrottled(tt.msg); got != tt.want {
			t.Errorf("isThrottled(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), "", "", 0.1, 100); err == nil {
		t.Fatal("expected error without API key")
	}
}
