package services

import (
	"context"
	"time"
)

// retryBackoff runs fn up to attempts times, sleeping base, 2*base,
// 4*base... between tries. The last error is returned. Context
// cancellation stops retrying immediately.
func retryBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := base

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(); err == nil {
			return nil
		}
	}

	return err
}
