package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecFunc runs a command and returns its stdout and stderr.
type ExecFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ClaudeCLI calls `claude --print` for one-shot completions.
type ClaudeCLI struct {
	model   string
	timeout time.Duration
	exec    ExecFunc
}

// NewClaudeCLI returns a client for the given model alias ("haiku" if empty).
func NewClaudeCLI(model string, timeout time.Duration) *ClaudeCLI {
	if model == "" {
		model = "haiku"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ClaudeCLI{model: model, timeout: timeout, exec: execCommand}
}

// SetExec replaces the command runner, for tests.
func (c *ClaudeCLI) SetExec(fn ExecFunc) { c.exec = fn }

// Complete implements Model. The CLI has no system prompt flag for --print,
// so the instruction is prepended to the prompt.
func (c *ClaudeCLI) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(system) != "" {
		prompt = fmt.Sprintf("[System Instructions]\n%s\n\n[User Request]\n%s", system, prompt)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stdout, stderr, err := c.exec(ctx, "claude", "--print", "--model", c.model, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("claude --print timed out after %v: %w", c.timeout, ctx.Err())
		}
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(stdout))
		}
		if isThrottled(msg) {
			return "", &RateLimitError{Provider: "claude-cli", RawResponse: msg}
		}
		return "", fmt.Errorf("claude --print: %s: %w", msg, err)
	}

	out := strings.TrimSpace(string(stdout))
	if out == "" {
		return "", errors.New("claude --print: empty response")
	}
	return out, nil
}
