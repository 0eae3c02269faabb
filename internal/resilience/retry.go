package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrPermanent marks an error as not worth retrying. Wrap failures with
// [Permanent] to abort a retry loop early.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so [Retry] stops immediately instead of backing off.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RetryConfig holds tuning knobs for [Retry].
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// InitialDelay is the backoff before the second attempt. Default: 250ms.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default: 5s.
	MaxDelay time.Duration
}

func (c *RetryConfig) withDefaults() RetryConfig {
	cfg := *c
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return cfg
}

// Retry runs fn up to cfg.Attempts times with doubled, jittered backoff
// between tries. It stops early on success, on a [Permanent] error, or when
// ctx is done, returning the last error seen.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	c := cfg.withDefaults()

	var lastErr error
	delay := c.InitialDelay
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		if attempt == c.Attempts {
			break
		}

		// Full jitter: sleep a random fraction of the current delay.
		sleep := time.Duration(rand.Int64N(int64(delay) + 1))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		}
		delay *= 2
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
	}
	return lastErr
}
