package port

import (
	"context"
	"time"
)

// RateLimitStore defines the persistence operations behind the transport-level
// sliding-window limiter. This is abuse protection for the HTTP surface and is
// distinct from the login attempt governor, which has its own atomic store.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
