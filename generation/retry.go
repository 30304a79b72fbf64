package generation

import (
	"fmt"
	"math"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	// BackoffLinear waits BaseDelay * attempt.
	BackoffLinear Backoff = "linear"
	// BackoffExponential waits BaseDelay * 2^(attempt-1).
	BackoffExponential Backoff = "exponential"
)

// RetryConfig holds retry configuration for generation calls.
type RetryConfig struct {
	// MaxAttempts is the total number of backend calls per request.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxBackoff caps any single delay. Zero means no cap.
	MaxBackoff time.Duration

	// Strategy is linear or exponential.
	Strategy Backoff
}

// DefaultRetryConfig returns the retry defaults: three attempts, linear
// backoff starting at one second, capped at ten.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxBackoff:  10 * time.Second,
		Strategy:    BackoffLinear,
	}
}

// Validate checks the config for values the client cannot run with.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative")
	}
	if c.MaxBackoff < 0 {
		return fmt.Errorf("max backoff must not be negative")
	}
	switch c.Strategy {
	case BackoffLinear, BackoffExponential, "":
	default:
		return fmt.Errorf("unknown backoff strategy %q", c.Strategy)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based). The
// sequence never decreases and never exceeds MaxBackoff.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 || c.BaseDelay <= 0 {
		return 0
	}

	var d time.Duration
	switch c.Strategy {
	case BackoffExponential:
		d = c.BaseDelay
		for i := 1; i < attempt; i++ {
			if d > math.MaxInt64/2 {
				if c.MaxBackoff > 0 {
					return c.MaxBackoff
				}
				return time.Duration(math.MaxInt64)
			}
			d *= 2
			if c.MaxBackoff > 0 && d >= c.MaxBackoff {
				return c.MaxBackoff
			}
		}
	default:
		d = c.BaseDelay * time.Duration(attempt)
	}

	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
