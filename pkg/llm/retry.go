package llm

import (
	"context"
	"time"
)

// temporary is implemented by errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

// RetryPolicy defines a bounded exponential backoff policy. It is decoupled
// from any specific call: Do retries whatever function it is given as long
// as the returned error reports itself as temporary.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry; it doubles per attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the policy used by NewClient when none is set:
// 3 total attempts (2 retries) starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, returns a non-temporary error, or attempts
// are exhausted. The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
			delay *= 2
		}

		err = fn()
		if err == nil {
			return nil
		}

		tmp, ok := err.(temporary)
		if !ok || !tmp.Temporary() {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
