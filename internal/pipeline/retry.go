package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Sleeper blocks for d or until the context is done. Injectable so tests can
// observe the exact backoff sequence without waiting.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy retries an operation with exponential backoff while the error
// is classified retryable. The delay doubles after every failed attempt,
// starting at BaseDelay, and is applied after each failure including the
// last, matching the provider-quota backoff of the image and video stages.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
	Sleep       Sleeper
}

// Do runs op until it succeeds, returns a non-retryable error, or exhausts
// MaxAttempts.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, err)
}
