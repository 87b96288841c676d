package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/repository"
)

func testCredentialChange(changedAt time.Time) domain.CredentialChange {
	actor := "admin-1"
	return domain.CredentialChange{
		IdentityID:   "identity-1",
		NewHash:      "argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		ChangedAt:    changedAt,
		HistoryLimit: 5,
		Audit: domain.AuditRecord{
			ID:         "audit-1",
			OccurredAt: changedAt,
			ActorID:    &actor,
			Action:     domain.AuditActionCredentialChange,
			TargetType: "identity",
			TargetID:   "identity-1",
			ChangedFields: []domain.FieldChange{
				{Field: "password_hash", Before: domain.RedactionMarker, After: domain.RedactionMarker},
			},
			SourceIP:  "203.0.113.5",
			RequestID: "req-1",
		},
	}
}

func TestIdentityRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	registeredAt := time.Now().UTC().Add(-24 * time.Hour)
	changedAt := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "phone", "display_name", "role", "password_hash", "status", "registered_at", "last_password_change",
	}).AddRow(
		"identity-1", "jdoe", "jdoe@example.com", nil, "John Doe", "member", "hash-1", domain.IdentityStatusActive, registeredAt, changedAt,
	)

	mock.ExpectQuery(`SELECT .*FROM authguard\.identities`).WithArgs("identity-1").WillReturnRows(rows)

	identity, err := repo.GetByID(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if identity.Username != "jdoe" {
		t.Fatalf("expected username jdoe, got %s", identity.Username)
	}
	if identity.Email != "jdoe@example.com" {
		t.Fatalf("expected email populated, got %q", identity.Email)
	}
	if identity.Phone != nil {
		t.Fatalf("expected nil phone, got %v", *identity.Phone)
	}
	if identity.Status != domain.IdentityStatusActive {
		t.Fatalf("expected active status, got %s", identity.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_GetByUsernameNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "phone", "display_name", "role", "password_hash", "status", "registered_at", "last_password_change",
	})

	mock.ExpectQuery(`SELECT .*FROM authguard\.identities`).WithArgs("ghost").WillReturnRows(rows)

	if _, err := repo.GetByUsername(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SetCredential(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	changedAt := time.Now().UTC()
	change := testCredentialChange(changedAt)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE authguard\.identities`).
		WithArgs(change.NewHash, changedAt, "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO authguard\.password_history`).
		WithArgs("identity-1", change.NewHash, changedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM authguard\.password_history`).
		WithArgs("identity-1", 5).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO authguard\.audit_records`).
		WithArgs(
			"audit-1",
			changedAt,
			"admin-1",
			domain.AuditActionCredentialChange,
			"identity",
			"identity-1",
			pgxmock.AnyArg(),
			"203.0.113.5",
			"req-1",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.SetCredential(context.Background(), change); err != nil {
		t.Fatalf("SetCredential returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SetCredentialRollsBackOnHistoryFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	changedAt := time.Now().UTC()
	change := testCredentialChange(changedAt)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE authguard\.identities`).
		WithArgs(change.NewHash, changedAt, "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO authguard\.password_history`).
		WithArgs("identity-1", change.NewHash, changedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = repo.SetCredential(context.Background(), change)

	var histErr *domain.HistoryWriteError
	if !errors.As(err, &histErr) {
		t.Fatalf("expected HistoryWriteError, got %T: %v", err, err)
	}
	if histErr.IdentityID != "identity-1" {
		t.Fatalf("expected identity id carried, got %s", histErr.IdentityID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SetCredentialRollsBackOnAuditFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	changedAt := time.Now().UTC()
	change := testCredentialChange(changedAt)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE authguard\.identities`).
		WithArgs(change.NewHash, changedAt, "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO authguard\.password_history`).
		WithArgs("identity-1", change.NewHash, changedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM authguard\.password_history`).
		WithArgs("identity-1", 5).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO authguard\.audit_records`).
		WithArgs(
			"audit-1",
			changedAt,
			"admin-1",
			domain.AuditActionCredentialChange,
			"identity",
			"identity-1",
			pgxmock.AnyArg(),
			"203.0.113.5",
			"req-1",
		).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = repo.SetCredential(context.Background(), change)

	var auditErr *domain.AuditWriteError
	if !errors.As(err, &auditErr) {
		t.Fatalf("expected AuditWriteError, got %T: %v", err, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_SetCredentialUnknownIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	changedAt := time.Now().UTC()
	change := testCredentialChange(changedAt)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE authguard\.identities`).
		WithArgs(change.NewHash, changedAt, "identity-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	if err := repo.SetCredential(context.Background(), change); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_ListPasswordHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "identity_id", "password_hash", "set_at"}).
		AddRow("hist-2", "identity-1", "hash-2", now).
		AddRow("hist-1", "identity-1", "hash-1", now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT .*FROM authguard\.password_history`).
		WithArgs("identity-1").
		WillReturnRows(rows)

	history, err := repo.ListPasswordHistory(context.Background(), "identity-1", 5)
	if err != nil {
		t.Fatalf("ListPasswordHistory returned error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two entries, got %d", len(history))
	}
	if history[0].ID != "hist-2" || history[1].ID != "hist-1" {
		t.Fatalf("unexpected order: %+v", history)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityRepository_TrimPasswordHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewIdentityRepository(mock)

	mock.ExpectExec(`DELETE FROM authguard\.password_history`).
		WithArgs("identity-1", 5).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	if err := repo.TrimPasswordHistory(context.Background(), "identity-1", 5); err != nil {
		t.Fatalf("TrimPasswordHistory returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
