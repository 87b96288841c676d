package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
)

const (
	defaultAuditQueryLimit = 50
	maxAuditQueryLimit     = 500

	auditTargetAuditLog = "audit_log"
)

// ErrAuditServiceUnavailable indicates the audit store is not configured.
var ErrAuditServiceUnavailable = errors.New("audit service unavailable")

// ErrCutoffRequired is returned for a purge with no cutoff when no retention
// period is configured either.
var ErrCutoffRequired = errors.New("cutoff is required")

// auditExportHeader is the fixed CSV column order for audit exports.
var auditExportHeader = []string{"id", "timestamp", "actor", "action", "target_type", "target_id", "changed_fields", "source"}

// AuditService records tracked changes and serves the query, export, and
// retention surfaces of the audit trail.
type AuditService struct {
	cfg          *config.AppConfig
	store        port.AuditStore
	events       port.EventPublisher
	degradation  domain.DegradationPolicy
	logger       *zap.Logger
	metrics      port.SecurityMetrics
	now          func() time.Time
	sensitive    map[string]struct{}
	retention    time.Duration
	defaultLimit int
	maxLimit     int
}

// ChangeRecordInput captures one tracked-entity mutation to audit. EventID is
// optional; supplying a stable id makes repeated ingestion of the same source
// event idempotent.
type ChangeRecordInput struct {
	EventID    string
	ActorID    *string
	Action     domain.AuditAction
	TargetType string
	TargetID   string
	Before     map[string]any
	After      map[string]any
	OccurredAt time.Time
	SourceIP   string
	RequestID  string
}

// ExportInput identifies the export scope and the requesting operator.
type ExportInput struct {
	Filter    domain.AuditFilter
	ActorID   string
	IP        string
	RequestID string
}

// PurgeInput describes an administrative retention purge. A zero cutoff falls
// back to now minus the configured retention period.
type PurgeInput struct {
	Cutoff    time.Time
	ActorID   string
	IP        string
	RequestID string
}

// NewAuditService constructs an AuditService with redaction and limits from config.
func NewAuditService(cfg *config.AppConfig, store port.AuditStore, events port.EventPublisher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}

	sensitiveNames := []string{"password", "password_hash", "secret", "token", "credential"}
	retention := time.Duration(0)
	defaultLimit := defaultAuditQueryLimit
	maxLimit := maxAuditQueryLimit
	degradation := domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient)

	if cfg != nil {
		if len(cfg.Audit.SensitiveFields) > 0 {
			sensitiveNames = cfg.Audit.SensitiveFields
		}
		retention = cfg.Audit.Retention
		if cfg.Audit.QueryDefaultLimit > 0 {
			defaultLimit = cfg.Audit.QueryDefaultLimit
		}
		if cfg.Audit.QueryMaxLimit > 0 {
			maxLimit = cfg.Audit.QueryMaxLimit
		}
		degradation = domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Audit.DegradationPolicy))
	}

	sensitive := make(map[string]struct{}, len(sensitiveNames))
	for _, name := range sensitiveNames {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			sensitive[name] = struct{}{}
		}
	}

	return &AuditService{
		cfg:          cfg,
		store:        store,
		events:       events,
		degradation:  degradation,
		logger:       logger,
		now:          time.Now,
		sensitive:    sensitive,
		retention:    retention,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches domain counters for audit write and export activity.
func (s *AuditService) WithMetrics(metrics port.SecurityMetrics) {
	s.metrics = metrics
}

// RecordChange diffs the supplied images, redacts sensitive fields, and
// appends one audit record. Identical images still produce a record with an
// empty diff. Returns the record id.
func (s *AuditService) RecordChange(ctx context.Context, input ChangeRecordInput) (string, error) {
	if s.store == nil {
		return "", ErrAuditServiceUnavailable
	}

	targetType := strings.TrimSpace(input.TargetType)
	if targetType == "" {
		return "", fmt.Errorf("target type is required")
	}
	targetID := strings.TrimSpace(input.TargetID)
	if targetID == "" {
		return "", fmt.Errorf("target id is required")
	}

	action := input.Action
	if action == "" {
		action = deriveAction(input.Before, input.After)
	}

	changed, err := domain.ComputeFieldDiff(input.Before, input.After, s.sensitive)
	if err != nil {
		return "", fmt.Errorf("compute field diff: %w", err)
	}

	id := strings.TrimSpace(input.EventID)
	if id == "" {
		id = uuid.NewString()
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	record := domain.AuditRecord{
		ID:            id,
		OccurredAt:    occurredAt,
		ActorID:       input.ActorID,
		Action:        action,
		TargetType:    targetType,
		TargetID:      targetID,
		ChangedFields: changed,
		SourceIP:      strings.TrimSpace(input.SourceIP),
		RequestID:     strings.TrimSpace(input.RequestID),
	}

	if err := s.store.Insert(ctx, record); err != nil {
		return "", &domain.AuditWriteError{Action: action, Cause: err}
	}
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(string(action))
	}

	if err := publishAuditRecorded(ctx, s.events, s.degradation, s.logger, record); err != nil {
		return "", err
	}

	return id, nil
}

// Query returns one page of audit records matching the filter, newest first.
func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	if s.store == nil {
		return nil, ErrAuditServiceUnavailable
	}

	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	if filter.Limit > s.maxLimit {
		filter.Limit = s.maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	page, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}

	return page, nil
}

// ExportCSV streams matching records oldest-first as CSV rows. The export
// itself is audited before the first row is written. Returns data rows written.
func (s *AuditService) ExportCSV(ctx context.Context, input ExportInput, w io.Writer) (int64, error) {
	if s.store == nil {
		return 0, ErrAuditServiceUnavailable
	}
	if w == nil {
		return 0, fmt.Errorf("writer is required")
	}

	exportRecord := domain.AuditRecord{
		ID:         uuid.NewString(),
		OccurredAt: s.now().UTC(),
		ActorID:    stringPtrOrNil(input.ActorID),
		Action:     domain.AuditActionExport,
		TargetType: auditTargetAuditLog,
		TargetID:   "csv",
		SourceIP:   strings.TrimSpace(input.IP),
		RequestID:  strings.TrimSpace(input.RequestID),
	}
	if err := s.store.Insert(ctx, exportRecord); err != nil {
		return 0, &domain.AuditWriteError{Action: domain.AuditActionExport, Cause: err}
	}
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(string(domain.AuditActionExport))
	}
	if err := publishAuditRecorded(ctx, s.events, s.degradation, s.logger, exportRecord); err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(auditExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	var rows int64
	err := s.store.Iterate(ctx, input.Filter, func(record domain.AuditRecord) error {
		if err := writer.Write(auditExportRow(record)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, fmt.Errorf("export audit records: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AddExportedRows(rows)
	}

	s.logger.Info("audit export completed",
		zap.String("record_id", exportRecord.ID),
		zap.Int64("rows", rows),
	)

	return rows, nil
}

// PurgeBefore removes records older than the cutoff and writes the purge audit
// record in the same transaction. Returns rows removed.
func (s *AuditService) PurgeBefore(ctx context.Context, input PurgeInput) (int64, error) {
	if s.store == nil {
		return 0, ErrAuditServiceUnavailable
	}

	cutoff := input.Cutoff
	if cutoff.IsZero() {
		if s.retention <= 0 {
			return 0, ErrCutoffRequired
		}
		cutoff = s.now().UTC().Add(-s.retention)
	}

	record := domain.AuditRecord{
		ID:         uuid.NewString(),
		OccurredAt: s.now().UTC(),
		ActorID:    stringPtrOrNil(input.ActorID),
		Action:     domain.AuditActionPurge,
		TargetType: auditTargetAuditLog,
		TargetID:   cutoff.UTC().Format(time.RFC3339),
		SourceIP:   strings.TrimSpace(input.IP),
		RequestID:  strings.TrimSpace(input.RequestID),
	}

	removed, err := s.store.PurgeBefore(ctx, cutoff, record)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(string(domain.AuditActionPurge))
	}

	if err := publishAuditRecorded(ctx, s.events, s.degradation, s.logger, record); err != nil {
		return removed, err
	}

	s.logger.Info("audit records purged",
		zap.Time("cutoff", cutoff),
		zap.Int64("removed", removed),
	)

	return removed, nil
}

// deriveAction infers the action kind from which images are populated.
func deriveAction(before, after map[string]any) domain.AuditAction {
	switch {
	case len(before) == 0 && len(after) > 0:
		return domain.AuditActionCreate
	case len(before) > 0 && len(after) == 0:
		return domain.AuditActionDelete
	default:
		return domain.AuditActionUpdate
	}
}

// auditExportRow renders one record in the fixed export column order.
func auditExportRow(record domain.AuditRecord) []string {
	actor := ""
	if record.ActorID != nil {
		actor = *record.ActorID
	}

	changed := make([]string, 0, len(record.ChangedFields))
	for _, fc := range record.ChangedFields {
		changed = append(changed, fmt.Sprintf("%s:%s=>%s", fc.Field, fc.Before, fc.After))
	}

	source := strings.TrimSpace(record.SourceIP + " " + record.RequestID)

	return []string{
		record.ID,
		record.OccurredAt.UTC().Format(time.RFC3339),
		actor,
		string(record.Action),
		record.TargetType,
		record.TargetID,
		strings.Join(changed, "; "),
		source,
	}
}

// publishAuditRecorded fans a durable audit record out to the event bus.
// Under the lenient degradation policy a publish failure is logged and
// tolerated; under strict it propagates.
func publishAuditRecorded(ctx context.Context, events port.EventPublisher, degradation domain.DegradationPolicy, logger *zap.Logger, record domain.AuditRecord) error {
	if events == nil {
		return nil
	}

	event := domain.AuditRecordedEvent{
		EventID:       uuid.NewString(),
		RecordID:      record.ID,
		OccurredAt:    record.OccurredAt,
		ActorID:       record.ActorID,
		Action:        record.Action,
		TargetType:    record.TargetType,
		TargetID:      record.TargetID,
		ChangedFields: record.ChangedFields,
		SourceIP:      record.SourceIP,
		RequestID:     record.RequestID,
	}

	if err := events.PublishAuditRecorded(ctx, event); err != nil {
		if degradation.IsStrict() {
			return fmt.Errorf("publish audit recorded event: %w", err)
		}
		if logger != nil {
			logger.Warn("publish audit recorded event failed",
				zap.String("record_id", record.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
