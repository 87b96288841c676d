package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/infra/security"
	"github.com/arklim/social-platform-authguard/internal/repository"
)

type passwordIdentityRepoMock struct {
	byID     map[string]domain.Identity
	history  map[string][]domain.PasswordHistoryEntry
	setCalls []domain.CredentialChange
	setErr   error
}

func (m *passwordIdentityRepoMock) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	if identity, ok := m.byID[id]; ok {
		i := identity
		return &i, nil
	}
	return nil, repository.ErrNotFound
}

func (m *passwordIdentityRepoMock) GetByUsername(context.Context, string) (*domain.Identity, error) {
	return nil, errors.New("unexpected call: GetByUsername")
}

func (m *passwordIdentityRepoMock) SetCredential(_ context.Context, change domain.CredentialChange) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls = append(m.setCalls, change)
	return nil
}

func (m *passwordIdentityRepoMock) ListPasswordHistory(_ context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	entries := m.history[identityID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]domain.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *passwordIdentityRepoMock) AddPasswordHistory(context.Context, domain.PasswordHistoryEntry) error {
	return errors.New("unexpected call: AddPasswordHistory")
}

func (m *passwordIdentityRepoMock) TrimPasswordHistory(context.Context, string, int) error {
	return errors.New("unexpected call: TrimPasswordHistory")
}

type passwordEventsMock struct {
	audited     []domain.AuditRecordedEvent
	credentials []domain.CredentialChangedEvent
	publishErr  error
}

func (m *passwordEventsMock) PublishAuditRecorded(_ context.Context, event domain.AuditRecordedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.audited = append(m.audited, event)
	return nil
}

func (m *passwordEventsMock) PublishLockoutTriggered(context.Context, domain.LockoutTriggeredEvent) error {
	return errors.New("unexpected call: PublishLockoutTriggered")
}

func (m *passwordEventsMock) PublishCredentialChanged(_ context.Context, event domain.CredentialChangedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.credentials = append(m.credentials, event)
	return nil
}

func TestPasswordServiceEvaluateAcceptsStrong(t *testing.T) {
	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)

	verdict, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{Candidate: "Vx9#Tq2$wM5z"})
	if err != nil {
		t.Fatalf("EvaluatePassword returned error: %v", err)
	}

	if !verdict.Accepted {
		t.Fatalf("expected candidate to be accepted, got reasons %v", verdict.Reasons)
	}
	if len(verdict.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", verdict.Reasons)
	}
	if verdict.EntropyBits < 50 {
		t.Fatalf("expected entropy above threshold, got %.1f", verdict.EntropyBits)
	}
}

func TestPasswordServiceEvaluateRejectsWeak(t *testing.T) {
	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)

	verdict, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{Candidate: "password"})
	if err != nil {
		t.Fatalf("EvaluatePassword returned error: %v", err)
	}

	if verdict.Accepted {
		t.Fatalf("expected candidate to be rejected")
	}

	expected := []string{
		domain.ReasonTooShort,
		domain.ReasonMissingCharacterClass,
		domain.ReasonCommonPattern,
		domain.ReasonInsufficientEntropy,
	}
	if len(verdict.Reasons) != len(expected) {
		t.Fatalf("expected %d reasons, got %v", len(expected), verdict.Reasons)
	}
	for i, code := range expected {
		if verdict.Reasons[i].Code != code {
			t.Fatalf("expected reason %d to be %s, got %s", i, code, verdict.Reasons[i].Code)
		}
	}
	if verdict.EntropyBits <= 0 || verdict.EntropyBits >= 50 {
		t.Fatalf("expected entropy below threshold, got %.1f", verdict.EntropyBits)
	}
}

func TestPasswordServiceEvaluateLoadsIdentityContext(t *testing.T) {
	identity := domain.Identity{
		ID:          "id-7",
		Username:    "jdoe",
		Email:       "jdoe@example.com",
		DisplayName: "John Doe",
	}
	repo := &passwordIdentityRepoMock{byID: map[string]domain.Identity{identity.ID: identity}}

	svc := NewPasswordService(nil, repo, nil, nil, &passwordEventsMock{}, nil)

	verdict, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{
		IdentityID: "id-7",
		Candidate:  "Xk4$jdoe!Wip9",
	})
	if err != nil {
		t.Fatalf("EvaluatePassword returned error: %v", err)
	}

	if verdict.Accepted {
		t.Fatalf("expected candidate containing the username to be rejected")
	}
	if len(verdict.Reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", verdict.Reasons)
	}
	if verdict.Reasons[0].Code != domain.ReasonContainsPersonalInfo {
		t.Fatalf("expected %s, got %s", domain.ReasonContainsPersonalInfo, verdict.Reasons[0].Code)
	}
}

func TestPasswordServiceEvaluateRejectsReuse(t *testing.T) {
	retainedHash, err := security.HashPassword("Nw3#Rv8$Lq5x")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	identity := domain.Identity{ID: "id-8", Username: "mallory", Email: "mallory@example.net"}
	repo := &passwordIdentityRepoMock{
		byID: map[string]domain.Identity{identity.ID: identity},
		history: map[string][]domain.PasswordHistoryEntry{
			identity.ID: {{ID: "ph-1", IdentityID: identity.ID, PasswordHash: retainedHash}},
		},
	}

	svc := NewPasswordService(nil, repo, nil, nil, &passwordEventsMock{}, nil)

	verdict, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{
		IdentityID: "id-8",
		Candidate:  "Nw3#Rv8$Lq5x",
	})
	if err != nil {
		t.Fatalf("EvaluatePassword returned error: %v", err)
	}

	if verdict.Accepted {
		t.Fatalf("expected reused candidate to be rejected")
	}
	if len(verdict.Reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", verdict.Reasons)
	}
	if verdict.Reasons[0].Code != domain.ReasonPasswordReused {
		t.Fatalf("expected %s, got %s", domain.ReasonPasswordReused, verdict.Reasons[0].Code)
	}
}

func TestPasswordServiceEvaluateUnknownIdentity(t *testing.T) {
	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)

	_, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{
		IdentityID: "missing",
		Candidate:  "Vx9#Tq2$wM5z",
	})
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestPasswordServiceEvaluateRequiresCandidate(t *testing.T) {
	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)

	if _, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{Candidate: "   "}); err == nil {
		t.Fatalf("expected error for blank candidate")
	}
}

func TestPasswordServiceChangeCredentialCommits(t *testing.T) {
	identity := domain.Identity{
		ID:          "id-9",
		Username:    "mallory",
		Email:       "mallory@example.net",
		DisplayName: "Mallory Park",
	}
	repo := &passwordIdentityRepoMock{byID: map[string]domain.Identity{identity.ID: identity}}
	events := &passwordEventsMock{}

	svc := NewPasswordService(nil, repo, nil, nil, events, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	res, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-9",
		NewPassword: "Qf7#Mv2$Hd9t",
		ActorID:     "admin-1",
		IP:          "198.51.100.7",
		RequestID:   "req-42",
	})
	if err != nil {
		t.Fatalf("ChangeCredential returned error: %v", err)
	}

	if res.IdentityID != "id-9" {
		t.Fatalf("expected identity id-9, got %s", res.IdentityID)
	}
	if !res.ChangedAt.Equal(fixed) {
		t.Fatalf("expected changed_at %v, got %v", fixed, res.ChangedAt)
	}

	if len(repo.setCalls) != 1 {
		t.Fatalf("expected one SetCredential call, got %d", len(repo.setCalls))
	}
	change := repo.setCalls[0]
	if change.IdentityID != "id-9" {
		t.Fatalf("expected change for id-9, got %s", change.IdentityID)
	}
	if !change.ChangedAt.Equal(fixed) {
		t.Fatalf("expected change timestamp %v, got %v", fixed, change.ChangedAt)
	}
	if change.HistoryLimit != 5 {
		t.Fatalf("expected history limit 5, got %d", change.HistoryLimit)
	}

	match, err := security.VerifyPassword("Qf7#Mv2$Hd9t", change.NewHash)
	if err != nil {
		t.Fatalf("verify new hash: %v", err)
	}
	if !match {
		t.Fatalf("expected stored hash to verify against the new password")
	}

	audit := change.Audit
	if audit.ID == "" {
		t.Fatalf("expected audit record id to be set")
	}
	if audit.Action != domain.AuditActionCredentialChange {
		t.Fatalf("expected credential_change audit, got %s", audit.Action)
	}
	if audit.TargetType != "identity" || audit.TargetID != "id-9" {
		t.Fatalf("expected audit target identity/id-9, got %s/%s", audit.TargetType, audit.TargetID)
	}
	if audit.ActorID == nil || *audit.ActorID != "admin-1" {
		t.Fatalf("expected audit actor admin-1, got %v", audit.ActorID)
	}
	if audit.SourceIP != "198.51.100.7" || audit.RequestID != "req-42" {
		t.Fatalf("expected audit source/request to carry over, got %s/%s", audit.SourceIP, audit.RequestID)
	}
	if len(audit.ChangedFields) != 1 {
		t.Fatalf("expected one changed field, got %v", audit.ChangedFields)
	}
	field := audit.ChangedFields[0]
	if field.Field != "password_hash" {
		t.Fatalf("expected password_hash field, got %s", field.Field)
	}
	if field.Before != domain.RedactionMarker || field.After != domain.RedactionMarker {
		t.Fatalf("expected redacted values, got %s => %s", field.Before, field.After)
	}

	if len(events.audited) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events.audited))
	}
	if events.audited[0].RecordID != audit.ID {
		t.Fatalf("expected audit event for record %s, got %s", audit.ID, events.audited[0].RecordID)
	}
	if len(events.credentials) != 1 {
		t.Fatalf("expected one credential event, got %d", len(events.credentials))
	}
	credential := events.credentials[0]
	if credential.IdentityID != "id-9" || credential.ChangedBy != "admin-1" {
		t.Fatalf("expected credential event for id-9 by admin-1, got %s by %s", credential.IdentityID, credential.ChangedBy)
	}
	if credential.Initial {
		t.Fatalf("expected non-initial credential event")
	}
	if !credential.ChangedAt.Equal(fixed) {
		t.Fatalf("expected credential event at %v, got %v", fixed, credential.ChangedAt)
	}
}

func TestPasswordServiceChangeCredentialRejectsWeak(t *testing.T) {
	identity := domain.Identity{ID: "id-9", Username: "mallory", Email: "mallory@example.net"}
	repo := &passwordIdentityRepoMock{byID: map[string]domain.Identity{identity.ID: identity}}
	events := &passwordEventsMock{}

	svc := NewPasswordService(nil, repo, nil, nil, events, nil)

	_, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-9",
		NewPassword: "password",
	})

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !validationErr.Has(domain.ReasonTooShort) {
		t.Fatalf("expected too_short among reasons, got %v", validationErr.Reasons)
	}
	if len(repo.setCalls) != 0 {
		t.Fatalf("expected no SetCredential call, got %d", len(repo.setCalls))
	}
	if len(events.audited) != 0 || len(events.credentials) != 0 {
		t.Fatalf("expected no events for rejected change")
	}
}

func TestPasswordServiceChangeCredentialRejectsReuse(t *testing.T) {
	retainedHash, err := security.HashPassword("Qf7#Mv2$Hd9t")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	identity := domain.Identity{ID: "id-9", Username: "mallory", Email: "mallory@example.net"}
	repo := &passwordIdentityRepoMock{
		byID: map[string]domain.Identity{identity.ID: identity},
		history: map[string][]domain.PasswordHistoryEntry{
			identity.ID: {{ID: "ph-1", IdentityID: identity.ID, PasswordHash: retainedHash}},
		},
	}

	svc := NewPasswordService(nil, repo, nil, nil, &passwordEventsMock{}, nil)

	_, err = svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-9",
		NewPassword: "Qf7#Mv2$Hd9t",
	})

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !validationErr.Has(domain.ReasonPasswordReused) {
		t.Fatalf("expected password_reused among reasons, got %v", validationErr.Reasons)
	}
	if len(repo.setCalls) != 0 {
		t.Fatalf("expected no SetCredential call, got %d", len(repo.setCalls))
	}
}

func TestPasswordServiceChangeCredentialHistoryWriteRollback(t *testing.T) {
	identity := domain.Identity{ID: "id-9", Username: "mallory", Email: "mallory@example.net"}
	repo := &passwordIdentityRepoMock{
		byID:   map[string]domain.Identity{identity.ID: identity},
		setErr: &domain.HistoryWriteError{IdentityID: "id-9", Cause: errors.New("disk full")},
	}
	events := &passwordEventsMock{}

	svc := NewPasswordService(nil, repo, nil, nil, events, nil)

	_, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-9",
		NewPassword: "Qf7#Mv2$Hd9t",
	})

	var historyErr *domain.HistoryWriteError
	if !errors.As(err, &historyErr) {
		t.Fatalf("expected HistoryWriteError, got %v", err)
	}
	if historyErr.IdentityID != "id-9" {
		t.Fatalf("expected failure for id-9, got %s", historyErr.IdentityID)
	}
	if len(events.audited) != 0 || len(events.credentials) != 0 {
		t.Fatalf("expected no events for rolled back change")
	}
}

func TestPasswordServiceChangeCredentialAuditWriteRollback(t *testing.T) {
	identity := domain.Identity{ID: "id-9", Username: "mallory", Email: "mallory@example.net"}
	repo := &passwordIdentityRepoMock{
		byID:   map[string]domain.Identity{identity.ID: identity},
		setErr: &domain.AuditWriteError{Action: domain.AuditActionCredentialChange, Cause: errors.New("insert failed")},
	}

	svc := NewPasswordService(nil, repo, nil, nil, &passwordEventsMock{}, nil)

	_, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-9",
		NewPassword: "Qf7#Mv2$Hd9t",
	})

	var auditErr *domain.AuditWriteError
	if !errors.As(err, &auditErr) {
		t.Fatalf("expected AuditWriteError, got %v", err)
	}
}

func TestPasswordServiceChangeCredentialUnknownIdentity(t *testing.T) {
	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)

	_, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "missing",
		NewPassword: "Qf7#Mv2$Hd9t",
	})
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestPasswordServiceChangeCredentialInitialSet(t *testing.T) {
	identity := domain.Identity{ID: "id-10", Username: "newcomer", Email: "newcomer@example.net"}
	repo := &passwordIdentityRepoMock{byID: map[string]domain.Identity{identity.ID: identity}}
	events := &passwordEventsMock{}

	svc := NewPasswordService(nil, repo, nil, nil, events, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	_, err := svc.ChangeCredential(context.Background(), CredentialChangeInput{
		IdentityID:  "id-10",
		NewPassword: "Vx9#Tq2$wM5z",
		Initial:     true,
	})
	if err != nil {
		t.Fatalf("ChangeCredential returned error: %v", err)
	}

	if len(repo.setCalls) != 1 {
		t.Fatalf("expected one SetCredential call, got %d", len(repo.setCalls))
	}
	if repo.setCalls[0].Audit.ActorID != nil {
		t.Fatalf("expected nil actor for unattributed change, got %v", repo.setCalls[0].Audit.ActorID)
	}

	if len(events.credentials) != 1 {
		t.Fatalf("expected one credential event, got %d", len(events.credentials))
	}
	if !events.credentials[0].Initial {
		t.Fatalf("expected initial credential event")
	}
	if events.credentials[0].ChangedBy != "" {
		t.Fatalf("expected empty changed_by, got %s", events.credentials[0].ChangedBy)
	}
}

func TestPasswordServiceEvaluateCountsRejections(t *testing.T) {
	metrics := newSecurityMetricsMock()

	svc := NewPasswordService(nil, &passwordIdentityRepoMock{}, nil, nil, &passwordEventsMock{}, nil)
	svc.WithMetrics(metrics)

	verdict, err := svc.EvaluatePassword(context.Background(), PasswordEvaluationInput{Candidate: "password"})
	if err != nil {
		t.Fatalf("EvaluatePassword returned error: %v", err)
	}
	if verdict.Accepted {
		t.Fatalf("expected candidate to be rejected")
	}

	for _, code := range []string{
		domain.ReasonTooShort,
		domain.ReasonMissingCharacterClass,
		domain.ReasonCommonPattern,
		domain.ReasonInsufficientEntropy,
	} {
		if metrics.rejections[code] != 1 {
			t.Fatalf("expected one %s rejection counted, got %d", code, metrics.rejections[code])
		}
	}
	if metrics.lockouts != 0 || len(metrics.writes) != 0 {
		t.Fatalf("expected no lockout or write counts for an evaluation")
	}
}
