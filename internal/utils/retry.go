package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emergency-service/internal/logging"
)

// ErrPermanent marks an error that Retry must not retry.
var ErrPermanent = errors.New("permanent failure")

// Retry calls fn up to maxAttempts times, sleeping delay between attempts.
// It stops early when ctx is done or fn returns an error wrapping ErrPermanent.
func Retry(ctx context.Context, logger *logging.Logger, maxAttempts int, delay time.Duration, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warnf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
