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
	"github.com/arklim/social-platform-authguard/internal/infra/security"
	"github.com/arklim/social-platform-authguard/internal/repository"
)

const (
	defaultPasswordHistoryEntries = 5

	auditTargetIdentity = "identity"
)

var (
	// ErrIdentityNotFound indicates no identity row matches the supplied id.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrPasswordServiceUnavailable indicates the service is missing required collaborators.
	ErrPasswordServiceUnavailable = errors.New("password service unavailable")
)

// PasswordService evaluates candidate passwords and commits credential changes.
type PasswordService struct {
	cfg          *config.AppConfig
	identities   port.IdentityRepository
	policy       port.PasswordPolicy
	hasher       port.PasswordHasher
	events       port.EventPublisher
	degradation  domain.DegradationPolicy
	logger       *zap.Logger
	metrics      port.SecurityMetrics
	now          func() time.Time
	historyLimit int
}

// PasswordEvaluationInput carries a candidate and the identity context to
// judge it against. When IdentityID is set, context and history load from the
// repository; otherwise the inline Context applies and no history is checked.
type PasswordEvaluationInput struct {
	IdentityID string
	Candidate  string
	Context    domain.PasswordContext
}

// PasswordVerdict reports the policy decision for one candidate.
type PasswordVerdict struct {
	Accepted    bool
	Reasons     []domain.PolicyViolation
	EntropyBits float64
}

// CredentialChangeInput describes a credential change or initial set request.
type CredentialChangeInput struct {
	IdentityID  string
	NewPassword string
	ActorID     string
	Initial     bool
	IP          string
	RequestID   string
}

// CredentialChangeResult reports the committed change.
type CredentialChangeResult struct {
	IdentityID string
	ChangedAt  time.Time
}

// NewPasswordService constructs a PasswordService. A nil policy or hasher
// selects the Argon2id-backed defaults.
func NewPasswordService(cfg *config.AppConfig, identities port.IdentityRepository, policy port.PasswordPolicy, hasher port.PasswordHasher, events port.EventPublisher, logger *zap.Logger) *PasswordService {
	if policy == nil {
		policy = security.DefaultPolicy()
	}
	if hasher == nil {
		hasher = security.NewArgon2Hasher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	historyLimit := defaultPasswordHistoryEntries
	degradation := domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient)
	if cfg != nil {
		if cfg.PasswordPolicy.HistoryDepth > 0 {
			historyLimit = cfg.PasswordPolicy.HistoryDepth
		}
		degradation = domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Audit.DegradationPolicy))
	}

	return &PasswordService{
		cfg:          cfg,
		identities:   identities,
		policy:       policy,
		hasher:       hasher,
		events:       events,
		degradation:  degradation,
		logger:       logger,
		now:          time.Now,
		historyLimit: historyLimit,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithHistoryLimit adjusts the password history depth considered for reuse checks.
func (s *PasswordService) WithHistoryLimit(limit int) {
	if limit >= 0 {
		s.historyLimit = limit
	}
}

// WithMetrics attaches domain counters for policy and audit activity.
func (s *PasswordService) WithMetrics(metrics port.SecurityMetrics) {
	s.metrics = metrics
}

// EvaluatePassword runs the full rule set against a candidate without changing
// any state. Policy rejections come back inside the verdict, not as an error.
func (s *PasswordService) EvaluatePassword(ctx context.Context, input PasswordEvaluationInput) (*PasswordVerdict, error) {
	if s.policy == nil {
		return nil, ErrPasswordServiceUnavailable
	}

	candidate := strings.TrimSpace(input.Candidate)
	if candidate == "" {
		return nil, fmt.Errorf("candidate password is required")
	}

	pctx := input.Context
	var history []domain.PasswordHistoryEntry

	if id := strings.TrimSpace(input.IdentityID); id != "" {
		if s.identities == nil {
			return nil, ErrPasswordServiceUnavailable
		}

		identity, err := s.identities.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrIdentityNotFound
			}
			return nil, fmt.Errorf("lookup identity: %w", err)
		}
		pctx = identity.Context()

		history, err = s.identities.ListPasswordHistory(ctx, id, s.historyLimit)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("list password history: %w", err)
		}
	}

	verdict := &PasswordVerdict{EntropyBits: security.EstimateEntropyBits(candidate)}

	err := s.policy.Evaluate(candidate, pctx, history)
	var validationErr *domain.ValidationError
	switch {
	case err == nil:
		verdict.Accepted = true
	case errors.As(err, &validationErr):
		verdict.Reasons = validationErr.Reasons
		s.countRejections(validationErr.Reasons)
	default:
		return nil, fmt.Errorf("evaluate password: %w", err)
	}

	return verdict, nil
}

// ChangeCredential validates the candidate and commits the credential update,
// the history append, the retention trim, and the audit record in a single
// transaction. Initial provisioning sets flow through the same path so the
// first credential lands in history as well.
func (s *PasswordService) ChangeCredential(ctx context.Context, input CredentialChangeInput) (*CredentialChangeResult, error) {
	if s.identities == nil || s.policy == nil || s.hasher == nil {
		return nil, ErrPasswordServiceUnavailable
	}

	id := strings.TrimSpace(input.IdentityID)
	if id == "" {
		return nil, fmt.Errorf("identity id is required")
	}
	password := strings.TrimSpace(input.NewPassword)
	if password == "" {
		return nil, fmt.Errorf("new password is required")
	}

	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	history, err := s.identities.ListPasswordHistory(ctx, id, s.historyLimit)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("list password history: %w", err)
	}

	if err := s.policy.Evaluate(password, identity.Context(), history); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			s.countRejections(validationErr.Reasons)
			return nil, validationErr
		}
		return nil, fmt.Errorf("evaluate password: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	changedAt := s.now().UTC()
	change := domain.CredentialChange{
		IdentityID:   id,
		NewHash:      hash,
		ChangedAt:    changedAt,
		HistoryLimit: s.historyLimit,
		Audit: domain.AuditRecord{
			ID:         uuid.NewString(),
			OccurredAt: changedAt,
			ActorID:    stringPtrOrNil(input.ActorID),
			Action:     domain.AuditActionCredentialChange,
			TargetType: auditTargetIdentity,
			TargetID:   id,
			ChangedFields: []domain.FieldChange{
				{Field: "password_hash", Before: domain.RedactionMarker, After: domain.RedactionMarker},
			},
			SourceIP:  strings.TrimSpace(input.IP),
			RequestID: strings.TrimSpace(input.RequestID),
		},
	}

	if err := s.identities.SetCredential(ctx, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("commit credential change: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(string(domain.AuditActionCredentialChange))
	}

	if err := s.fanOutAuditRecord(ctx, change.Audit); err != nil {
		return nil, err
	}
	if err := s.publishCredentialChanged(ctx, id, input.ActorID, changedAt, input.Initial); err != nil {
		return nil, err
	}

	return &CredentialChangeResult{IdentityID: id, ChangedAt: changedAt}, nil
}

func (s *PasswordService) fanOutAuditRecord(ctx context.Context, record domain.AuditRecord) error {
	return publishAuditRecorded(ctx, s.events, s.degradation, s.logger, record)
}

func (s *PasswordService) countRejections(reasons []domain.PolicyViolation) {
	if s.metrics == nil {
		return
	}
	for _, violation := range reasons {
		s.metrics.RecordPolicyRejection(violation.Code)
	}
}

func (s *PasswordService) publishCredentialChanged(ctx context.Context, identityID, actorID string, changedAt time.Time, initial bool) error {
	if s.events == nil {
		return nil
	}

	event := domain.CredentialChangedEvent{
		EventID:    uuid.NewString(),
		IdentityID: identityID,
		ChangedAt:  changedAt,
		ChangedBy:  strings.TrimSpace(actorID),
		Initial:    initial,
	}

	if err := s.events.PublishCredentialChanged(ctx, event); err != nil {
		if s.degradation.IsStrict() {
			return fmt.Errorf("publish credential changed event: %w", err)
		}
		s.logger.Warn("publish credential changed event failed",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}

	return nil
}
