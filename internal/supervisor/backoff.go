package supervisor

import (
	"math"
	"time"
)

// healthyUptime is how long a runner must stay up before its restart
// attempt counter resets.
const healthyUptime = 30 * time.Second

// BackoffConfig defines the delay schedule between restart attempts.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay"`  // Delay before the first restart
	MaxDelay     time.Duration `json:"max_delay"`      // Cap on the delay between restarts
	Factor       float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter       bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultBackoffConfig provides reasonable defaults for restart backoff.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Factor:       2.0,
	Jitter:       true,
}

// DelayFor computes the delay before restart attempt number attempt.
// Attempt 1 waits InitialDelay; each further attempt multiplies by Factor
// up to MaxDelay.
func (c BackoffConfig) DelayFor(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.Factor, float64(attempt-1)))

	// Cap at maximum delay
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	// Add jitter if enabled
	if c.Jitter && delay > 0 {
		jitterFactor := (2*time.Now().UnixNano()%2 - 1) // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = c.InitialDelay
		}
	}

	return delay
}
