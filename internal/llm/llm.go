// Package llm wraps the hosted models used by the analysis stages behind a
// single Model interface, with call spacing and throttling retries.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Model produces a completion for a system instruction and a user prompt.
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, system, prompt string) (string, error)

func (f ModelFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// RateLimitError indicates the provider throttled the request.
type RateLimitError struct {
	Provider    string
	RetryAfter  time.Duration
	RawResponse string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// isThrottled reports whether a provider message describes throttling.
func isThrottled(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "throttl") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "429")
}
