package resilience

import (
	"context"
	"time"
)

// RetryConfig controls Retry's backoff schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of calls to fn, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay growth.
	MaxBackoff time.Duration

	// Multiplier grows the delay between attempts (exponential backoff).
	Multiplier float64
}

// DefaultRetryConfig returns a 3-attempt exponential backoff starting at
// 100ms, capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// Retry calls fn until it succeeds, cfg.MaxAttempts is exhausted, or ctx is
// done. It returns the error from the last attempt, or ctx.Err() if the
// context was cancelled while waiting between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn Executor) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	backoff := cfg.InitialBackoff

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if cfg.MaxBackoff > 0 {
			backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	return err
}
