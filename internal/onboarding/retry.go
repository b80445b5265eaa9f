package onboarding

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// retryWithBackoff runs op up to maxRetries+1 times with exponential backoff.
// The idempotency key (the email for signup retries) only scopes logging; op
// itself must be safe to re-run.
func retryWithBackoff(ctx context.Context, logger *zap.Logger, idempotencyKey string, maxRetries uint64, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 10 * time.Second

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil && attempt <= int(maxRetries) {
			logger.Warn("Operation failed, backing off before retry",
				zap.String("key", idempotencyKey),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

// permanent marks an error as non-retryable for retryWithBackoff.
func permanent(err error) error {
	return backoff.Permanent(err)
}
