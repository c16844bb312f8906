// Package retry provides a bounded retry executor with exponential backoff
// and symmetric jitter for transient secret-fetch failures.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Default policy values used when a field is unset.
const (
	DefaultAttempts       = 3
	DefaultBaseDelay      = 200 * time.Millisecond
	DefaultBackoffFactor  = 2.0
	DefaultMaxDelay       = 5 * time.Second
	DefaultJitterFraction = 0.25
)

// Policy is pure retry configuration, consumed per invocation.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64

	// MaxDelay caps every computed delay before jitter is applied.
	MaxDelay time.Duration

	// JitterFraction perturbs each delay by a uniformly random amount in
	// ±JitterFraction·delay. Zero yields fully deterministic delays.
	JitterFraction float64

	// Sleep is the delay function, injectable for deterministic tests.
	// Defaults to time.Sleep.
	Sleep func(time.Duration)

	// Rand returns a value in [0, 1), injectable for deterministic tests.
	Rand func() float64
}

// ShouldRetry reports whether a failure is worth another attempt. A nil
// predicate retries everything.
type ShouldRetry func(error) bool

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// Do runs op up to p.Attempts times, sleeping between failures. The last
// failure's error is returned unchanged so callers can classify it with
// errors.Is/As. shouldRetry short-circuits the loop for failures that
// another attempt cannot fix; nil retries every failure.
func Do(op func() error, p Policy, shouldRetry ShouldRetry) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}

		// no sleep after the final failure
		if attempt < p.Attempts-1 {
			p.Sleep(delay(attempt, p))
		}
	}

	return lastErr
}

// DoValue is Do for operations that produce a result.
func DoValue[T any](op func() (T, error), p Policy, shouldRetry ShouldRetry) (T, error) {
	var result T
	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, p, shouldRetry)
	return result, err
}

// delay computes the sleep before retrying attempt (zero-based):
// min(MaxDelay, BaseDelay·BackoffFactor^attempt), perturbed by a uniform
// random amount within ±JitterFraction of itself, clamped non-negative.
func delay(attempt int, p Policy) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.JitterFraction > 0 {
		// p.Rand() in [0,1) mapped onto [-1,1)
		d += d * p.JitterFraction * (2*p.Rand() - 1)
	}

	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}
