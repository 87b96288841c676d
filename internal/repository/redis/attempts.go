package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-authguard/internal/core/port"
)

const (
	defaultAttemptPrefix = "authguard:attempts"
	defaultLockoutPrefix = "authguard:lockout"
)

// AttemptRepository persists login failure counters and lockout markers in
// Redis so every instance of the service shares one view of attempt state.
// Counters advance through INCR inside a transactional pipeline; the count is
// never read first and written back, so concurrent failures each observe a
// distinct post-increment total.
type AttemptRepository struct {
	client        *red.Client
	attemptPrefix string
	lockoutPrefix string
	now           func() time.Time
}

// NewAttemptRepository constructs a repository with the provided Redis client
// and key prefixes.
func NewAttemptRepository(client *red.Client, attemptPrefix, lockoutPrefix string) *AttemptRepository {
	if strings.TrimSpace(attemptPrefix) == "" {
		attemptPrefix = defaultAttemptPrefix
	}
	if strings.TrimSpace(lockoutPrefix) == "" {
		lockoutPrefix = defaultLockoutPrefix
	}

	return &AttemptRepository{
		client:        client,
		attemptPrefix: attemptPrefix,
		lockoutPrefix: lockoutPrefix,
		now:           time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *AttemptRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// IncrementFailure atomically adds one failure for the key, refreshes the
// counter window, and returns the post-increment total.
func (r *AttemptRepository) IncrementFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, errors.New("attempt key is required")
	}

	counterKey := r.counterKey(key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	if window > 0 {
		pipe.Expire(ctx, counterKey, window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr attempts: %w", err)
	}

	return incr.Val(), nil
}

// Lock stores the locked-until marker with the cooloff as TTL and discards
// the failure counter so the next window starts fresh.
func (r *AttemptRepository) Lock(ctx context.Context, key string, lockedUntil time.Time, cooloff time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("attempt key is required")
	}
	if cooloff <= 0 {
		return errors.New("cooloff must be positive")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.lockKey(key), lockedUntil.UTC().Format(time.RFC3339Nano), cooloff)
	pipe.Del(ctx, r.counterKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set lockout: %w", err)
	}

	return nil
}

// Reset clears both the failure counter and any lockout marker for the key.
func (r *AttemptRepository) Reset(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("attempt key is required")
	}

	if err := r.client.Del(ctx, r.counterKey(key), r.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis reset attempts: %w", err)
	}

	return nil
}

// Status reports the current counter value and lockout marker. A lockout
// whose deadline already passed reads as unlocked; the marker expires on its
// own and is never rewritten here.
func (r *AttemptRepository) Status(ctx context.Context, key string) (port.AttemptSnapshot, error) {
	var snapshot port.AttemptSnapshot
	if strings.TrimSpace(key) == "" {
		return snapshot, errors.New("attempt key is required")
	}

	countRaw, err := r.client.Get(ctx, r.counterKey(key)).Result()
	switch {
	case err == red.Nil:
	case err != nil:
		return snapshot, fmt.Errorf("redis get attempts: %w", err)
	default:
		count, convErr := strconv.ParseInt(countRaw, 10, 64)
		if convErr != nil {
			return snapshot, fmt.Errorf("parse attempt count: %w", convErr)
		}
		snapshot.Count = count
	}

	lockKey := r.lockKey(key)
	lockRaw, err := r.client.Get(ctx, lockKey).Result()
	switch {
	case err == red.Nil:
		return snapshot, nil
	case err != nil:
		return snapshot, fmt.Errorf("redis get lockout: %w", err)
	}

	lockedUntil, err := time.Parse(time.RFC3339Nano, lockRaw)
	if err != nil {
		return snapshot, fmt.Errorf("parse lockout deadline: %w", err)
	}

	ttl, err := r.client.PTTL(ctx, lockKey).Result()
	if err != nil {
		return snapshot, fmt.Errorf("redis pttl lockout: %w", err)
	}

	if ttl > 0 {
		snapshot.LockedUntil = &lockedUntil
		snapshot.RetryAfter = ttl
		return snapshot, nil
	}

	if retry := lockedUntil.Sub(r.now().UTC()); retry > 0 {
		snapshot.LockedUntil = &lockedUntil
		snapshot.RetryAfter = retry
	}

	return snapshot, nil
}

func (r *AttemptRepository) counterKey(key string) string {
	return fmt.Sprintf("%s:%s", r.attemptPrefix, key)
}

func (r *AttemptRepository) lockKey(key string) string {
	return fmt.Sprintf("%s:%s", r.lockoutPrefix, key)
}

var _ port.AttemptStore = (*AttemptRepository)(nil)
