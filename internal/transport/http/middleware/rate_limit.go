package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateLimitProblemType  = "https://authguard.social-platform.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// SlidingWindowStore holds per-subject request timestamps for the transport
// limiter. Implementations must tolerate concurrent callers.
type SlidingWindowStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// SubjectFunc derives the string a rule buckets requests by, usually the
// client IP. Returning false skips the rule for that request.
type SubjectFunc func(*gin.Context) (string, bool)

// RateLimitRule is one sliding-window quota applied by the limiter.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier SubjectFunc
}

// RateLimiter turns rules into gin middleware backed by a shared window store.
type RateLimiter struct {
	store  SlidingWindowStore
	logger *zap.Logger
	now    func() time.Time
}

// ProblemDetails is the RFC 9457 payload returned with 429 responses.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a limiter. A nil logger is replaced with a no-op one.
func NewRateLimiter(store SlidingWindowStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source, mainly for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier buckets requests by the caller's resolved client IP.
func ClientIPIdentifier() SubjectFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// windowState is the outcome of probing one rule for one subject.
type windowState struct {
	limit   int
	used    int
	resetAt time.Time
	blocked bool
}

func (w windowState) remaining() int {
	return max(w.limit-w.used, 0)
}

func (w windowState) retryAfter(now time.Time) time.Duration {
	return max(w.resetAt.Sub(now), 0)
}

// RateLimit enforces the given rules. Rules with no subject function, a
// non-positive limit, or a non-positive window are dropped up front. Store
// failures never block the request; the login attempt governor owns the
// fail-closed path.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var header *windowState

		for _, rule := range active {
			subject, ok := rule.Identifier(c)
			if !ok || subject == "" {
				continue
			}

			state, err := rl.probe(c.Request.Context(), rule, subject, now)
			if err != nil {
				rl.logger.Warn("rate limit store unavailable",
					zap.String("rule", rule.Name),
					zap.String("subject", subject),
					zap.Error(err))
				continue
			}

			if header == nil || stricter(*header, state) {
				snapshot := state
				header = &snapshot
			}

			if state.blocked {
				writeRateLimitHeaders(c, state, now)
				rejectRateLimited(c, state, now)
				return
			}
		}

		if header != nil {
			writeRateLimitHeaders(c, *header, now)
		}

		c.Next()
	}
}

// probe trims the subject's window, checks occupancy, and records the request
// when the quota still has room.
func (rl *RateLimiter) probe(ctx context.Context, rule RateLimitRule, subject string, now time.Time) (windowState, error) {
	key := rule.Name + ":" + subject

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return windowState{}, err
	}

	used, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}

	state := windowState{limit: rule.Limit, used: used, resetAt: now.Add(rule.Window)}

	oldest, occupied, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return windowState{}, err
	}
	if occupied {
		state.resetAt = oldest.Add(rule.Window)
	}

	if used >= rule.Limit {
		state.blocked = true
		return state, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return windowState{}, err
	}
	state.used++

	return state, nil
}

// stricter reports whether b should drive the response headers instead of a.
// A blocked window always wins; otherwise the one closer to exhaustion does.
func stricter(a, b windowState) bool {
	if a.blocked != b.blocked {
		return b.blocked
	}
	if a.remaining() != b.remaining() {
		return b.remaining() < a.remaining()
	}
	return b.resetAt.Before(a.resetAt)
}

func retrySeconds(state windowState, now time.Time) int {
	return int(math.Ceil(state.retryAfter(now).Seconds()))
}

func writeRateLimitHeaders(c *gin.Context, state windowState, now time.Time) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(state.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(state.remaining()))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(state.resetAt.Unix(), 10))
	if state.blocked {
		h.Set("Retry-After", strconv.Itoa(retrySeconds(state, now)))
	}
}

func rejectRateLimited(c *gin.Context, state windowState, now time.Time) {
	seconds := retrySeconds(state, now)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Request rate exceeded. Retry in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
