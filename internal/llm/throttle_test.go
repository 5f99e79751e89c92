package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastThrottled(m Model, retries int) *Throttled {
	th := NewThrottled(m, time.Millisecond, retries, nil)
	th.SetBackoffBase(time.Millisecond)
	return th
}

func TestThrottled_RetriesRateLimit(t *testing.T) {
	calls := 0
	m := ModelFunc(func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", &RateLimitError{Provider: "fake"}
		}
		return "done", nil
	})

	out, err := fastThrottled(m, 3).Complete(context.Background(), "", "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "done" || calls != 3 {
		t.Errorf("out = %q, calls = %d", out, calls)
	}
}

func TestThrottled_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	m := ModelFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", &RateLimitError{Provider: "fake"}
	})

	_, err := fastThrottled(m, 3).Complete(context.Background(), "", "p")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + 3 retries)", calls)
	}
}

func TestThrottled_OtherErrorsNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad request")
	m := ModelFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", boom
	})

	_, err := fastThrottled(m, 3).Complete(context.Background(), "", "p")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestThrottled_SpacesCalls(t *testing.T) {
	m := ModelFunc(func(context.Context, string, string) (string, error) { return "ok", nil })
	th := NewThrottled(m, 30*time.Millisecond, 0, nil)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := th.Complete(context.Background(), "", "p"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("3 calls took %v, want at least ~60ms", elapsed)
	}
}

func TestThrottled_ContextCancelled(t *testing.T) {
	m := ModelFunc(func(context.Context, string, string) (string, error) {
		return "", &RateLimitError{Provider: "fake"}
	})
	th := NewThrottled(m, time.Millisecond, 3, nil)
	th.SetBackoffBase(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := th.Complete(ctx, "", "p"); err == nil {
		t.Fatal("expected error after cancellation")
	}
}
