package filesaga

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy governs backoff for a retryable activity. It is static
// configuration: one value per stage in the plan, never mutated at runtime.
type RetryPolicy struct {
	// InitialInterval is the wait before the first retry. Must be > 0 when
	// MaxAttempts > 1.
	InitialInterval time.Duration

	// MaxInterval caps the backoff growth. Must be >= InitialInterval.
	MaxInterval time.Duration

	// MaxAttempts is the total number of invocation attempts, including the
	// first. Must be >= 1.
	MaxAttempts int
}

// Validate checks the policy for internally consistent values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.MaxAttempts > 1 && p.InitialInterval <= 0 {
		return fmt.Errorf("InitialInterval must be > 0, got %v", p.InitialInterval)
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("MaxInterval (%v) must be >= InitialInterval (%v)", p.MaxInterval, p.InitialInterval)
	}
	return nil
}

// backoff returns the wait before the given retry. attempt is 1-based and
// counts the attempts already made, so the wait after the first failure uses
// attempt == 1. Growth is exponential (doubling), capped at MaxInterval, with
// ±25% jitter so concurrent runs don't retry in lockstep.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxInterval) {
		d = float64(p.MaxInterval)
	}

	jitter := d * 0.25 * (rand.Float64()*2 - 1)
	wait := time.Duration(d + jitter)
	if wait < 0 {
		wait = p.InitialInterval
	}
	return wait
}

// SingleAttempt is the policy used for undo actions: compensations must not
// themselves require compensations, so they get exactly one try.
var SingleAttempt = RetryPolicy{MaxAttempts: 1}
