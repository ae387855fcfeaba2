package retry

import (
	"context"
	"math"
	"time"
)

// SleepFunc pauses for d or until ctx is done, whichever comes first
type SleepFunc func(ctx context.Context, d time.Duration) error

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextDelay multiplies current by factor, capping at maxDelay when it is set
// and at the largest representable duration otherwise
func nextDelay(current time.Duration, factor float64, maxDelay time.Duration) time.Duration {
	var d time.Duration
	if next := float64(current) * factor; next >= math.MaxInt64 {
		d = time.Duration(math.MaxInt64)
	} else {
		d = time.Duration(next)
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// Schedule returns the delays a Do call sleeps through when every attempt
// fails: one entry per retry, following InitialDelay * BackoffFactor^n.
func (c *Config) Schedule() []time.Duration {
	if c.MaxAttempts <= 1 {
		return nil
	}

	delays := make([]time.Duration, 0, c.MaxAttempts-1)
	delay := c.InitialDelay
	for i := 1; i < c.MaxAttempts; i++ {
		delays = append(delays, delay)
		delay = nextDelay(delay, c.BackoffFactor, c.MaxDelay)
	}
	return delays
}

// TotalDelay sums Schedule
func (c *Config) TotalDelay() time.Duration {
	var total time.Duration
	for _, d := range c.Schedule() {
		if total > math.MaxInt64-d {
			return time.Duration(math.MaxInt64)
		}
		total += d
	}
	return total
}
