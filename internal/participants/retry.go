package participants

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy bounds how often a transactional step is re-run after a
// transient store conflict.
type RetryPolicy struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64
}

// DefaultRetry is used when no policy is configured.
var DefaultRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 20 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	Jitter:         0.2,
}

// NewRetryPolicy builds a policy from configured attempts and initial backoff,
// keeping the default cap and jitter. Non-positive values keep the defaults.
func NewRetryPolicy(attempts int, initialBackoff time.Duration) RetryPolicy {
	p := DefaultRetry
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	if initialBackoff > 0 {
		p.InitialBackoff = initialBackoff
	}
	return p
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempts are exhausted. Only ErrTransientConflict is retried.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.InitialBackoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if err == nil || !errors.Is(err, ErrTransientConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(withJitter(backoff, p.Jitter)):
		}
		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}
