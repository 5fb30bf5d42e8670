package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/llm"
)

type scriptedCompleter struct {
	err   error
	calls int
}

func (s *scriptedCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: "ok"}, nil
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	inner := &scriptedCompleter{err: &llm.ProviderError{StatusCode: 503, Message: "down"}}
	breaker := llm.NewBreaker(inner, llm.BreakerConfig{Threshold: 3, Cooldown: time.Hour})
	ctx := context.Background()
	req := &llm.CompletionRequest{Prompt: "hi"}

	for i := 0; i < 3; i++ {
		if _, err := breaker.Complete(ctx, req); err == nil {
			t.Fatal("expected failure")
		}
	}
	if breaker.State() != llm.BreakerOpen {
		t.Fatalf("state = %s, want open", breaker.State())
	}

	// Open breaker fails fast without calling the provider.
	_, err := breaker.Complete(ctx, req)
	if !errors.Is(err, llm.ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("provider called %d times, want 3", inner.calls)
	}
}

func TestBreakerIgnoresPermanentErrors(t *testing.T) {
	inner := &scriptedCompleter{err: &llm.ProviderError{StatusCode: 400, Message: "bad request"}}
	breaker := llm.NewBreaker(inner, llm.BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	ctx := context.Background()
	req := &llm.CompletionRequest{Prompt: "hi"}

	for i := 0; i < 5; i++ {
		if _, err := breaker.Complete(ctx, req); err == nil {
			t.Fatal("expected failure")
		}
	}
	if breaker.State() != llm.BreakerClosed {
		t.Errorf("4xx errors tripped the breaker: state = %s", breaker.State())
	}
	if inner.calls != 5 {
		t.Errorf("provider called %d times, want 5", inner.calls)
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	var states []llm.BreakerState
	inner := &scriptedCompleter{err: &llm.ProviderError{StatusCode: 500, Message: "boom"}}
	breaker := llm.NewBreaker(inner, llm.BreakerConfig{
		Threshold:     1,
		Cooldown:      10 * time.Millisecond,
		OnStateChange: func(s llm.BreakerState) { states = append(states, s) },
	})
	ctx := context.Background()
	req := &llm.CompletionRequest{Prompt: "hi"}

	if _, err := breaker.Complete(ctx, req); err == nil {
		t.Fatal("expected failure")
	}
	if breaker.State() != llm.BreakerOpen {
		t.Fatalf("state = %s, want open", breaker.State())
	}

	time.Sleep(20 * time.Millisecond)
	if breaker.State() != llm.BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open after cooldown", breaker.State())
	}

	// Probe succeeds; the breaker closes.
	inner.err = nil
	if _, err := breaker.Complete(ctx, req); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if breaker.State() != llm.BreakerClosed {
		t.Errorf("state = %s, want closed after successful probe", breaker.State())
	}

	if len(states) != 2 || states[0] != llm.BreakerOpen || states[1] != llm.BreakerClosed {
		t.Errorf("state transitions = %v, want [open closed]", states)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	inner := &scriptedCompleter{err: &llm.ProviderError{StatusCode: 500, Message: "boom"}}
	breaker := llm.NewBreaker(inner, llm.BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	ctx := context.Background()
	req := &llm.CompletionRequest{Prompt: "hi"}

	_, _ = breaker.Complete(ctx, req)
	time.Sleep(20 * time.Millisecond)

	// Probe fails; cooldown restarts.
	if _, err := breaker.Complete(ctx, req); err == nil {
		t.Fatal("expected probe failure")
	}
	if breaker.State() != llm.BreakerOpen {
		t.Errorf("state = %s, want open after failed probe", breaker.State())
	}
}
