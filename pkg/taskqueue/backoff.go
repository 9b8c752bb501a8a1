package taskqueue

import (
	"context"
	"fmt"
	"time"
)

// Backoff is the retry policy applied around task execution: each Retry
// sleeps an increasing delay capped at Max, and fails permanently once
// MaxRetries is exceeded. Success resets the delay. Not safe for concurrent
// use; each worker goroutine owns one.
type Backoff struct {
	// Initial is the first retry delay.
	Initial time.Duration
	// Max caps the delay growth.
	Max time.Duration
	// MaxRetries bounds consecutive retries before giving up.
	MaxRetries int

	delay   time.Duration
	retries int
}

// DefaultBackoff returns the policy used by the task workers.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Initial:    time.Second,
		Max:        5 * time.Minute,
		MaxRetries: 10,
	}
}

// Retry sleeps the current delay and doubles it for next time. It returns
// an error once the retry budget is exhausted, or when the context ends
// while sleeping.
func (b *Backoff) Retry(ctx context.Context, cause error) error {
	b.retries++
	if b.retries > b.MaxRetries {
		return fmt.Errorf("retries exhausted after %d attempts: %w", b.retries-1, cause)
	}

	if b.delay == 0 {
		b.delay = b.Initial
	}
	delay := b.delay
	b.delay *= 2
	if b.delay > b.Max {
		b.delay = b.Max
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Success resets the delay and the retry count.
func (b *Backoff) Success() {
	b.delay = 0
	b.retries = 0
}
