package llm

import (
	"context"
	"math/rand"
	"time"

	"sumbench/internal/errs"
	"sumbench/internal/logging"
)

// maxBackoff caps one retry wait.
const maxBackoff = 30 * time.Second

// CompleteWithRetry runs Complete under the failure taxonomy: rate
// limits back off exponentially with jitter (honoring the provider's
// retry-after), content filters get one more attempt, everything else
// surfaces immediately.
func CompleteWithRetry(ctx context.Context, c Client, req *Request) (*Completion, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		comp, err := c.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		lastErr = err

		kind := errs.KindOf(err)
		if attempt >= errs.MaxAttempts(kind) {
			return nil, lastErr
		}

		wait := backoff(attempt, errs.RetryAfterOf(err))
		logging.LLMWarn("%s: %s, retrying in %v (attempt %d)", c.Model(), kind, wait, attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// backoff doubles from one second per attempt, caps at maxBackoff,
// never waits less than the provider's suggestion, and adds up to 25%
// jitter so pooled workers do not retry in lockstep.
func backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	if retryAfter > d {
		d = retryAfter
	}
	return d + time.Duration(rand.Int63n(int64(d/4)))
}
