package services

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	backoffInitial    = 500 * time.Millisecond
	backoffMax        = 8 * time.Second
	backoffMultiplier = 2
)

// withRateLimitRetry runs fn, retrying while it reports a rate-limit
// signal. Waits grow exponentially with jitter, honor the origin's
// suggested delay when it is longer, and are capped both per attempt
// and by a total wait budget. Any other error returns immediately.
func withRateLimitRetry(ctx context.Context, budget time.Duration, fn func() error) error {
	wait := backoffInitial
	var spent time.Duration

	for {
		err := fn()
		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) {
			return err
		}

		delay := wait
		if rateErr.RetryAfter > delay {
			delay = rateErr.RetryAfter
		}
		// jitter in [delay, 1.5*delay)
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		if delay > backoffMax {
			delay = backoffMax
		}

		if spent+delay > budget {
			return err
		}
		spent += delay

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		wait *= backoffMultiplier
		if wait > backoffMax {
			wait = backoffMax
		}
	}
}
