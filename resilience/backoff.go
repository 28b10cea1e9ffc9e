package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3. A negative value disables retries.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% random delay to avoid synchronized retries.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry is scheduled.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// WithDefaults returns c with zero fields set to their defaults.
func (c RetryConfig) WithDefaults() RetryConfig {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = func(err error) bool { return err != nil }
	}
	return c
}

// ShouldRetry reports whether a failure on attempt (0-based) is retried.
func (c RetryConfig) ShouldRetry(attempt int, err error) bool {
	return attempt < c.MaxRetries && c.RetryIf(err)
}

// Delay returns the wait before retry number attempt (0-based):
// InitialDelay * Multiplier^attempt, capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		d = float64(c.MaxDelay)
	}
	delay := time.Duration(d)

	if c.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}
