package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the current state of a provider circuit breaker.
type BreakerState string

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen fails calls fast until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen lets a probe call through after the cooldown.
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned without touching the provider while the breaker
// is open. Callers treat it like any other provider failure.
var ErrBreakerOpen = errors.New("llm provider circuit open")

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Breaker wraps a Completer with a circuit breaker. Consecutive transient
// failures trip it; while open, Complete fails fast so a degraded provider
// does not hold every request for the full retry budget. Permanent failures
// (4xx) do not count: the provider is up, the request is wrong.
type Breaker struct {
	inner Completer

	mu            sync.Mutex
	state         BreakerState
	threshold     int
	cooldown      time.Duration
	failures      int
	lastFailure   time.Time
	onStateChange func(BreakerState)
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive transient failures that trip
	// the breaker (default: 5).
	Threshold int

	// Cooldown is how long the breaker stays open before allowing a probe
	// (default: 30s).
	Cooldown time.Duration

	// OnStateChange is called when the breaker transitions state.
	OnStateChange func(BreakerState)
}

// NewBreaker wraps a Completer with a circuit breaker.
func NewBreaker(inner Completer, config BreakerConfig) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = defaultBreakerThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaultBreakerCooldown
	}
	return &Breaker{
		inner:         inner,
		state:         BreakerClosed,
		threshold:     config.Threshold,
		cooldown:      config.Cooldown,
		onStateChange: config.OnStateChange,
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

func (b *Breaker) currentState() BreakerState {
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Complete implements Completer.
func (b *Breaker) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if b.State() == BreakerOpen {
		return nil, ErrBreakerOpen
	}

	completion, err := b.inner.Complete(ctx, req)
	if err != nil {
		b.record(err)
		return nil, err
	}

	b.success()
	return completion, nil
}

func (b *Breaker) record(err error) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && !providerErr.Temporary() {
		b.success()
		return
	}
	if errors.Is(err, context.Canceled) {
		// The caller went away; says nothing about provider health.
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState()
	b.failures++
	b.lastFailure = time.Now()

	if state == BreakerClosed && b.failures >= b.threshold {
		b.transition(BreakerOpen)
	}
	// A failed half-open probe leaves the stored state open; the refreshed
	// lastFailure restarts the cooldown.
}

func (b *Breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != BreakerClosed {
		b.transition(BreakerClosed)
	}
}

func (b *Breaker) transition(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	if b.onStateChange != nil {
		b.onStateChange(state)
	}
}
