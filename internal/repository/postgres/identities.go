package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
	"github.com/arklim/social-platform-authguard/internal/repository"
)

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	audit   *AuditRepository
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	repo := &IdentityRepository{
		exec:    exec,
		audit:   NewAuditRepository(exec),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *IdentityRepository) WithTx(tx pgx.Tx) *IdentityRepository {
	if tx == nil {
		return r
	}
	return &IdentityRepository{
		pool:    r.pool,
		exec:    tx,
		audit:   r.audit.WithTx(tx),
		builder: r.builder,
	}
}

func identityColumns() []string {
	return []string{
		"id",
		"username",
		"email",
		"phone",
		"display_name",
		"role",
		"password_hash",
		"status",
		"registered_at",
		"last_password_change",
	}
}

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		email    sql.NullString
		phone    sql.NullString
		identity domain.Identity
	)

	if err := row.Scan(
		&identity.ID,
		&identity.Username,
		&email,
		&phone,
		&identity.DisplayName,
		&identity.Role,
		&identity.PasswordHash,
		&identity.Status,
		&identity.RegisteredAt,
		&identity.LastPasswordChange,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	if email.Valid {
		identity.Email = email.String
	}
	if phone.Valid {
		val := phone.String
		identity.Phone = &val
	}

	return &identity, nil
}

// GetByID retrieves an identity by identifier.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns()...).
		From("authguard.identities").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	return scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByUsername retrieves an identity by its unique username.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns()...).
		From("authguard.identities").
		Where(squirrel.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity by username sql: %w", err)
	}

	return scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
}

// SetCredential applies the credential update, history append, retention trim,
// and audit insert in one transaction. Any step failing rolls back the others,
// so the credential columns, the history table, and the audit trail never
// disagree.
func (r *IdentityRepository) SetCredential(ctx context.Context, change domain.CredentialChange) error {
	identityID := strings.TrimSpace(change.IdentityID)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if strings.TrimSpace(change.NewHash) == "" {
		return fmt.Errorf("password hash is required")
	}

	beginner, ok := r.exec.(pgTxBeginner)
	if !ok {
		return fmt.Errorf("set credential requires a transactional executor")
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin credential transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txRepo := r.WithTx(tx)

	changedAt := change.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}

	if err := txRepo.updateCredential(ctx, identityID, change.NewHash, changedAt); err != nil {
		return err
	}

	entry := domain.PasswordHistoryEntry{
		IdentityID:   identityID,
		PasswordHash: change.NewHash,
		SetAt:        changedAt,
	}
	if err := txRepo.AddPasswordHistory(ctx, entry); err != nil {
		return &domain.HistoryWriteError{IdentityID: identityID, Cause: err}
	}
	if err := txRepo.TrimPasswordHistory(ctx, identityID, change.HistoryLimit); err != nil {
		return &domain.HistoryWriteError{IdentityID: identityID, Cause: err}
	}

	if err := txRepo.audit.Insert(ctx, change.Audit); err != nil {
		return &domain.AuditWriteError{Action: change.Audit.Action, Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit credential transaction: %w", err)
	}

	return nil
}

func (r *IdentityRepository) updateCredential(ctx context.Context, id, hash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("authguard.identities").
		Set("password_hash", hash).
		Set("last_password_change", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update credential sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListPasswordHistory retrieves the most recent password hashes for an
// identity, newest first.
func (r *IdentityRepository) ListPasswordHistory(ctx context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	trimmedID := strings.TrimSpace(identityID)
	if trimmedID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	builder := r.builder.Select("id", "identity_id", "password_hash", "set_at").
		From("authguard.password_history").
		Where(squirrel.Eq{"identity_id": trimmedID}).
		OrderBy("set_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var entry domain.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.IdentityID, &entry.PasswordHash, &entry.SetAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// AddPasswordHistory inserts a password hash into the history table.
func (r *IdentityRepository) AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	identityID := strings.TrimSpace(entry.IdentityID)
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}
	if strings.TrimSpace(entry.PasswordHash) == "" {
		return fmt.Errorf("password hash is required")
	}

	setAt := entry.SetAt
	if setAt.IsZero() {
		setAt = time.Now().UTC()
	}

	builder := r.builder.Insert("authguard.password_history")
	if entry.ID != "" {
		builder = builder.Columns("id", "identity_id", "password_hash", "set_at").
			Values(entry.ID, identityID, entry.PasswordHash, setAt)
	} else {
		builder = builder.Columns("identity_id", "password_hash", "set_at").
			Values(identityID, entry.PasswordHash, setAt)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	return nil
}

// TrimPasswordHistory ensures only the most recent maxEntries hashes are retained.
func (r *IdentityRepository) TrimPasswordHistory(ctx context.Context, identityID string, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}

	trimmedID := strings.TrimSpace(identityID)
	if trimmedID == "" {
		return fmt.Errorf("identity id is required")
	}

	stmt := `
		DELETE FROM authguard.password_history
		 WHERE identity_id = $1
		   AND id NOT IN (
				SELECT id
				  FROM authguard.password_history
				 WHERE identity_id = $1
				 ORDER BY set_at DESC
				 LIMIT $2
		   )
	`

	if _, err := r.exec.Exec(ctx, stmt, trimmedID, maxEntries); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}

	return nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
