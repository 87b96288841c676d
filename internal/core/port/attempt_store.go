package port

import (
	"context"
	"time"
)

// AttemptSnapshot is the raw counter-store view of one key.
type AttemptSnapshot struct {
	Count       int64
	LockedUntil *time.Time
	RetryAfter  time.Duration
}

// AttemptStore is the shared atomic counter store backing the login attempt
// governor. IncrementFailure must be a single atomic fetch-and-add against
// the store; implementations must never read the current count and write an
// incremented copy, because concurrent callers would race and under-count.
type AttemptStore interface {
	// IncrementFailure atomically increments the failure counter for key,
	// refreshing its expiry window, and returns the post-increment count.
	IncrementFailure(ctx context.Context, key string, window time.Duration) (int64, error)
	// Lock records the locked-until marker for key with the cooloff as TTL
	// and discards the failure counter so the next window starts fresh.
	Lock(ctx context.Context, key string, lockedUntil time.Time, cooloff time.Duration) error
	// Reset clears both the failure counter and any lockout marker.
	Reset(ctx context.Context, key string) error
	// Status reports the current counter value and lockout marker, if any.
	Status(ctx context.Context, key string) (AttemptSnapshot, error)
}
