package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
)

// AuditRepository implements port.AuditStore using PostgreSQL. Records are
// append-only: there is no update statement in this file, and the only delete
// is the audited retention purge.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	repo := &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

func auditColumns() []string {
	return []string{
		"id",
		"occurred_at",
		"actor_id",
		"action",
		"target_type",
		"target_id",
		"changed_fields",
		"source_ip",
		"request_id",
	}
}

// Insert appends one audit record. Inserting an id that already exists is a
// no-op so at-least-once producers stay idempotent.
func (r *AuditRepository) Insert(ctx context.Context, record domain.AuditRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("audit record id is required")
	}
	if record.Action == "" {
		return fmt.Errorf("audit action is required")
	}

	occurredAt := record.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	changedFields := record.ChangedFields
	if changedFields == nil {
		changedFields = []domain.FieldChange{}
	}
	encoded, err := json.Marshal(changedFields)
	if err != nil {
		return fmt.Errorf("serialize changed fields: %w", err)
	}

	var actorValue any
	if record.ActorID != nil && *record.ActorID != "" {
		actorValue = *record.ActorID
	}

	stmt, args, err := r.builder.Insert("authguard.audit_records").
		Columns(auditColumns()...).
		Values(
			record.ID,
			occurredAt,
			actorValue,
			record.Action,
			record.TargetType,
			record.TargetID,
			encoded,
			record.SourceIP,
			record.RequestID,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit record sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return nil
}

func (r *AuditRepository) applyFilter(builder squirrel.SelectBuilder, filter domain.AuditFilter) squirrel.SelectBuilder {
	if filter.ActorID != "" {
		builder = builder.Where(squirrel.Eq{"actor_id": filter.ActorID})
	}
	if filter.Action != "" {
		builder = builder.Where(squirrel.Eq{"action": filter.Action})
	}
	if filter.TargetType != "" {
		builder = builder.Where(squirrel.Eq{"target_type": filter.TargetType})
	}
	if filter.TargetID != "" {
		builder = builder.Where(squirrel.Eq{"target_id": filter.TargetID})
	}
	if !filter.From.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"occurred_at": filter.From})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(squirrel.Lt{"occurred_at": filter.To})
	}
	return builder
}

func scanAuditRecord(rows pgx.Rows) (domain.AuditRecord, error) {
	var (
		record  domain.AuditRecord
		actorID sql.NullString
		encoded []byte
	)

	if err := rows.Scan(
		&record.ID,
		&record.OccurredAt,
		&actorID,
		&record.Action,
		&record.TargetType,
		&record.TargetID,
		&encoded,
		&record.SourceIP,
		&record.RequestID,
	); err != nil {
		return domain.AuditRecord{}, fmt.Errorf("scan audit record: %w", err)
	}

	if actorID.Valid {
		val := actorID.String
		record.ActorID = &val
	}

	record.ChangedFields = []domain.FieldChange{}
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &record.ChangedFields); err != nil {
			return domain.AuditRecord{}, fmt.Errorf("decode changed fields: %w", err)
		}
	}

	return record, nil
}

// Query returns one page of matching records, newest first, plus the total
// match count.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	countBuilder := r.applyFilter(r.builder.Select("COUNT(*)").From("authguard.audit_records"), filter)
	countStmt, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count audit records sql: %w", err)
	}

	var total int64
	if err := r.exec.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("scan audit records count: %w", err)
	}

	pageBuilder := r.applyFilter(
		r.builder.Select(auditColumns()...).From("authguard.audit_records"),
		filter,
	).OrderBy("occurred_at DESC", "id DESC")
	if filter.Limit > 0 {
		pageBuilder = pageBuilder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		pageBuilder = pageBuilder.Offset(uint64(filter.Offset))
	}

	stmt, args, err := pageBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit records sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AuditRecord, 0)
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return &domain.AuditPage{
		Records: records,
		Total:   int(total),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Iterate streams matching records oldest-first, invoking fn for each row
// without buffering the full result set.
func (r *AuditRepository) Iterate(ctx context.Context, filter domain.AuditFilter, fn func(domain.AuditRecord) error) error {
	if fn == nil {
		return fmt.Errorf("iterate callback is required")
	}

	builder := r.applyFilter(
		r.builder.Select(auditColumns()...).From("authguard.audit_records"),
		filter,
	).OrderBy("occurred_at ASC", "id ASC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build iterate audit records sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit records: %w", err)
	}

	return nil
}

// PurgeBefore removes records older than cutoff and documents the purge with
// the supplied audit record in the same transaction.
func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time, audit domain.AuditRecord) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("purge cutoff is required")
	}

	beginner, ok := r.exec.(pgTxBeginner)
	if !ok {
		return 0, fmt.Errorf("purge requires a transactional executor")
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin purge transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txRepo := r.WithTx(tx)

	stmt, args, err := r.builder.Delete("authguard.audit_records").
		Where(squirrel.Lt{"occurred_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge audit records sql: %w", err)
	}

	ct, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	removed := ct.RowsAffected()

	if err := txRepo.Insert(ctx, audit); err != nil {
		return 0, &domain.AuditWriteError{Action: audit.Action, Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purge transaction: %w", err)
	}

	return removed, nil
}

var _ port.AuditStore = (*AuditRepository)(nil)
