package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-authguard/internal/core/port"
)

// SlidingWindowConfig tunes the sorted-set window kept per subject.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository keeps one sorted set per subject, scored by the
// nanosecond timestamp of each request.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)

// NewRateLimitRepository wraps the shared client with sliding-window semantics.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt appends the request timestamp and refreshes the bucket TTL in
// one round trip.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.bucket(identifier)
	nanos := at.UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
	if r.cfg.TTL > 0 {
		pipe.Expire(ctx, key, r.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt for %s: %w", identifier, err)
	}

	return nil
}

// CountAttempts counts entries inside the window that ends at reference.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return 0, err
	}

	n, err := r.client.ZCount(ctx, r.bucket(identifier), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts for %s: %w", identifier, err)
	}

	return int(n), nil
}

// TrimWindow drops entries that fell out of the window ending at reference.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	lo, _, err := windowBounds(window, reference)
	if err != nil {
		return err
	}

	if err := r.client.ZRemRangeByScore(ctx, r.bucket(identifier), "-inf", lo).Err(); err != nil {
		return fmt.Errorf("trim window for %s: %w", identifier, err)
	}

	return nil
}

// OldestAttempt returns the earliest entry still inside the window.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return time.Time{}, false, err
	}

	entries, err := r.client.ZRangeByScore(ctx, r.bucket(identifier), &redis.ZRangeBy{Min: lo, Max: hi, Count: 1}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt for %s: %w", identifier, err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(entries[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp %q: %w", entries[0], err)
	}

	return time.Unix(0, nanos), true, nil
}

func (r *RateLimitRepository) bucket(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

func windowBounds(window time.Duration, reference time.Time) (lo, hi string, err error) {
	if window <= 0 {
		return "", "", errors.New("window must be positive")
	}
	lo = strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	hi = strconv.FormatInt(reference.UnixNano(), 10)
	return lo, hi, nil
}
