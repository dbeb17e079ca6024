package services

import (
	"errors"
	"fmt"
	"time"
)

// Session-fatal relay errors. Each maps to exactly one user-facing
// failure reason; nothing else escapes a relay session.
var (
	// ErrNotFound means the selection token or its record is absent
	// from the cache; not retryable without a new search.
	ErrNotFound = errors.New("not found")
	// ErrSourceUnavailable means the origin message is missing or
	// inaccessible; presumed permanently invalid, never retried.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrProcessingFailed means both staging attempts (copy and
	// forward) failed; the user may retry with a new selection.
	ErrProcessingFailed = errors.New("processing failed")
	// ErrDeliveryFailed means the staged copy could not be relayed
	// to the requester.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrTimedOut means a step or the whole session exceeded its budget.
	ErrTimedOut = errors.New("timed out")
)

// ErrNoChanges is returned by a Notifier when the delivery channel reports
// that a progress update changed nothing. It is treated as success.
var ErrNoChanges = errors.New("no changes to display")

// RateLimitError reports a flood-control signal from the delivery channel,
// carrying the wait the origin suggested
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
