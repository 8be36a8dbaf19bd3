package toolclient

import (
	"context"
	"time"

	"github.com/debrief/psbc/pkg/logger"
)

// backoffDelay is exponential backoff capped at 3s, grounded on
// apibridge.BackoffDelay in the si retrieval pack (attempt 1 = 300ms,
// doubling, capped).
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := 300 * time.Millisecond
	d := base * time.Duration(uint(1)<<uint(attempt-1))
	if d > 3*time.Second {
		return 3 * time.Second
	}
	return d
}

// ConnectWithRetry calls Connect repeatedly with exponential backoff
// until it succeeds, ctx is cancelled, or maxAttempts is exhausted
// (maxAttempts <= 0 means unlimited). Used by the Supervisor while in
// its Starting state.
func (c *Client) ConnectWithRetry(ctx context.Context, maxAttempts int) error {
	var lastErr error
	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		logger.WarnX(logModule, "connect attempt failed, backing off", "attempt", attempt, "error", lastErr)

		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
