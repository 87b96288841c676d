package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
	appLogger "github.com/arklim/social-platform-authguard/internal/infra/logger"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutCooloff   = 30 * time.Minute

	auditInsertAttempts = 3
	auditInsertBackoff  = 50 * time.Millisecond
)

// ErrAttemptKeyIncomplete is returned when the supplied key fields do not
// satisfy the configured key strategy.
var ErrAttemptKeyIncomplete = errors.New("attempt key incomplete")

// LoginService is the failed-login governor: it gates authentication on the
// per-key lockout state and records every outcome in the audit trail.
type LoginService struct {
	cfg         *config.AppConfig
	attempts    port.AttemptStore
	audit       port.AuditStore
	events      port.EventPublisher
	degradation domain.DegradationPolicy
	logger      *zap.Logger
	metrics     port.SecurityMetrics
	now         func() time.Time
	threshold   int64
	cooloff     time.Duration
	window      time.Duration
	strategy    domain.KeyStrategy
}

// LoginCheckInput identifies the attempt key to consult.
type LoginCheckInput struct {
	Source   string
	Username string
}

// LoginOutcomeInput describes one finished authentication attempt.
type LoginOutcomeInput struct {
	Source     string
	Username   string
	Success    bool
	IdentityID string
	ActorID    string
	IP         string
	RequestID  string
}

// NewLoginService constructs a LoginService with thresholds from config.
func NewLoginService(cfg *config.AppConfig, attempts port.AttemptStore, audit port.AuditStore, events port.EventPublisher, logger *zap.Logger) *LoginService {
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := int64(defaultLockoutThreshold)
	cooloff := defaultLockoutCooloff
	window := time.Duration(0)
	strategy := domain.KeyStrategySourceUsername
	degradation := domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient)

	if cfg != nil {
		if cfg.Lockout.Threshold > 0 {
			threshold = int64(cfg.Lockout.Threshold)
		}
		if cfg.Lockout.Cooloff > 0 {
			cooloff = cfg.Lockout.Cooloff
		}
		window = cfg.Lockout.Window
		strategy = domain.ParseKeyStrategy(cfg.Lockout.KeyStrategy)
		degradation = domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Audit.DegradationPolicy))
	}
	if window <= 0 {
		window = cooloff
	}

	return &LoginService{
		cfg:         cfg,
		attempts:    attempts,
		audit:       audit,
		events:      events,
		degradation: degradation,
		logger:      logger,
		now:         time.Now,
		threshold:   threshold,
		cooloff:     cooloff,
		window:      window,
		strategy:    strategy,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *LoginService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches domain counters for lockout and audit activity.
func (s *LoginService) WithMetrics(metrics port.SecurityMetrics) {
	s.metrics = metrics
}

// CheckLogin reports the governor state for the key before authentication is
// attempted. A locked key returns its state together with a LockoutError; any
// store failure fails closed with CounterUnavailableError.
func (s *LoginService) CheckLogin(ctx context.Context, input LoginCheckInput) (*domain.AttemptState, error) {
	if s.attempts == nil {
		return nil, &domain.CounterUnavailableError{Cause: fmt.Errorf("attempt store not configured")}
	}

	key, err := s.attemptKey(input.Source, input.Username)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.attempts.Status(ctx, key.String())
	if err != nil {
		return nil, &domain.CounterUnavailableError{Cause: err}
	}

	state := attemptStateFrom(key, snapshot)
	if state.Locked() {
		return state, &domain.LockoutError{Key: key, RetryAfter: state.RetryAfter}
	}

	return state, nil
}

// RecordLoginOutcome updates the governor for the key and appends the
// auth_success or auth_failure audit record. Crossing the failure threshold
// locks the key, audits the transition, and publishes a lockout event; a
// failure against an already-locked key reports the remaining lockout without
// extending it. A success resets the key from any phase, locked included. The
// outcome audit is the final step; when it cannot be written after bounded
// retries the operation fails with AuditWriteError.
func (s *LoginService) RecordLoginOutcome(ctx context.Context, input LoginOutcomeInput) (*domain.AttemptState, error) {
	if s.attempts == nil {
		return nil, &domain.CounterUnavailableError{Cause: fmt.Errorf("attempt store not configured")}
	}
	if s.audit == nil {
		return nil, fmt.Errorf("audit store not configured")
	}

	key, err := s.attemptKey(input.Source, input.Username)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	var state *domain.AttemptState
	if input.Success {
		if err := s.attempts.Reset(ctx, key.String()); err != nil {
			return nil, &domain.CounterUnavailableError{Cause: err}
		}
		state = &domain.AttemptState{Key: key, Phase: domain.AttemptPhaseOpen}
	} else {
		state, err = s.recordFailure(ctx, input, key, now)
		if err != nil {
			return state, err
		}
	}

	if err := s.recordOutcome(ctx, input, key, now); err != nil {
		return state, err
	}

	return state, nil
}

func (s *LoginService) recordFailure(ctx context.Context, input LoginOutcomeInput, key domain.AttemptKey, now time.Time) (*domain.AttemptState, error) {
	snapshot, err := s.attempts.Status(ctx, key.String())
	if err != nil {
		return nil, &domain.CounterUnavailableError{Cause: err}
	}
	if snapshot.LockedUntil != nil {
		// Failures during the cooloff neither extend the lock nor seed the
		// next counter window.
		return attemptStateFrom(key, snapshot), nil
	}

	count, err := s.attempts.IncrementFailure(ctx, key.String(), s.window)
	if err != nil {
		return nil, &domain.CounterUnavailableError{Cause: err}
	}

	if count < s.threshold {
		return &domain.AttemptState{Key: key, Phase: domain.AttemptPhaseAccumulating, Count: count}, nil
	}

	lockedUntil := now.Add(s.cooloff)
	if err := s.attempts.Lock(ctx, key.String(), lockedUntil, s.cooloff); err != nil {
		return nil, &domain.CounterUnavailableError{Cause: err}
	}
	if s.metrics != nil {
		s.metrics.RecordLockout()
	}
	state := &domain.AttemptState{
		Key:         key,
		Phase:       domain.AttemptPhaseLocked,
		Count:       count,
		LockedUntil: &lockedUntil,
		RetryAfter:  s.cooloff,
	}

	return state, s.recordLockout(ctx, input, key, count, lockedUntil, now)
}

func (s *LoginService) attemptKey(source, username string) (domain.AttemptKey, error) {
	key := domain.NewAttemptKey(s.strategy, source, username)
	if key.Username == "" && s.strategy != domain.KeyStrategySource {
		return domain.AttemptKey{}, fmt.Errorf("%w: username is required", ErrAttemptKeyIncomplete)
	}
	if key.Source == "" && s.strategy != domain.KeyStrategyUsername {
		return domain.AttemptKey{}, fmt.Errorf("%w: source is required", ErrAttemptKeyIncomplete)
	}
	return key, nil
}

func attemptStateFrom(key domain.AttemptKey, snapshot port.AttemptSnapshot) *domain.AttemptState {
	state := &domain.AttemptState{
		Key:         key,
		Count:       snapshot.Count,
		LockedUntil: snapshot.LockedUntil,
		RetryAfter:  snapshot.RetryAfter,
	}
	switch {
	case snapshot.LockedUntil != nil:
		state.Phase = domain.AttemptPhaseLocked
	case snapshot.Count > 0:
		state.Phase = domain.AttemptPhaseAccumulating
	default:
		state.Phase = domain.AttemptPhaseOpen
	}
	return state
}

func (s *LoginService) recordOutcome(ctx context.Context, input LoginOutcomeInput, key domain.AttemptKey, now time.Time) error {
	action := domain.AuditActionAuthFailure
	if input.Success {
		action = domain.AuditActionAuthSuccess
	}

	record := domain.AuditRecord{
		ID:         uuid.NewString(),
		OccurredAt: now,
		ActorID:    stringPtrOrNil(input.ActorID),
		Action:     action,
		TargetType: auditTargetIdentity,
		TargetID:   outcomeTarget(input, key),
		SourceIP:   outcomeSourceIP(input, key),
		RequestID:  strings.TrimSpace(input.RequestID),
	}

	if err := s.insertAuditRetrying(ctx, record); err != nil {
		return err
	}

	return publishAuditRecorded(ctx, s.events, s.degradation, s.logger, record)
}

func (s *LoginService) recordLockout(ctx context.Context, input LoginOutcomeInput, key domain.AttemptKey, count int64, lockedUntil, now time.Time) error {
	record := domain.AuditRecord{
		ID:         uuid.NewString(),
		OccurredAt: now,
		ActorID:    stringPtrOrNil(input.ActorID),
		Action:     domain.AuditActionLockout,
		TargetType: auditTargetIdentity,
		TargetID:   outcomeTarget(input, key),
		SourceIP:   outcomeSourceIP(input, key),
		RequestID:  strings.TrimSpace(input.RequestID),
	}

	if err := s.insertAuditRetrying(ctx, record); err != nil {
		return err
	}
	if err := publishAuditRecorded(ctx, s.events, s.degradation, s.logger, record); err != nil {
		return err
	}

	s.logger.Info("login key locked",
		zap.String("key", appLogger.MaskString(key.String())),
		zap.Int64("count", count),
		zap.Time("locked_until", lockedUntil),
	)

	return s.publishLockoutTriggered(ctx, key, count, lockedUntil, now)
}

// insertAuditRetrying retries transient audit insert failures with a short
// backoff. Inserts are idempotent on the record id, so retrying an ambiguous
// failure cannot duplicate the record.
func (s *LoginService) insertAuditRetrying(ctx context.Context, record domain.AuditRecord) error {
	var lastErr error
	for attempt := 0; attempt < auditInsertAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &domain.AuditWriteError{Action: record.Action, Cause: ctx.Err()}
			case <-time.After(auditInsertBackoff << (attempt - 1)):
			}
			s.logger.Warn("retrying audit insert",
				zap.String("action", string(record.Action)),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		if err := s.audit.Insert(ctx, record); err != nil {
			lastErr = err
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordAuditWrite(string(record.Action))
		}
		return nil
	}

	return &domain.AuditWriteError{Action: record.Action, Cause: lastErr}
}

func (s *LoginService) publishLockoutTriggered(ctx context.Context, key domain.AttemptKey, count int64, lockedUntil, now time.Time) error {
	if s.events == nil {
		return nil
	}

	event := domain.LockoutTriggeredEvent{
		EventID:     uuid.NewString(),
		Source:      key.Source,
		Username:    key.Username,
		Count:       count,
		LockedUntil: lockedUntil,
		TriggeredAt: now,
	}

	if err := s.events.PublishLockoutTriggered(ctx, event); err != nil {
		if s.degradation.IsStrict() {
			return fmt.Errorf("publish lockout triggered event: %w", err)
		}
		s.logger.Warn("publish lockout triggered event failed",
			zap.String("key", appLogger.MaskString(key.String())),
			zap.Error(err),
		)
	}

	return nil
}

func outcomeTarget(input LoginOutcomeInput, key domain.AttemptKey) string {
	if id := strings.TrimSpace(input.IdentityID); id != "" {
		return id
	}
	if key.Username != "" {
		return key.Username
	}
	return key.Source
}

func outcomeSourceIP(input LoginOutcomeInput, key domain.AttemptKey) string {
	if ip := strings.TrimSpace(input.IP); ip != "" {
		return ip
	}
	return key.Source
}
