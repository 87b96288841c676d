package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
)

type auditStoreMock struct {
	records      []domain.AuditRecord
	insertErr    error
	iterateErr   error
	purgeErr     error
	lastFilter   domain.AuditFilter
	purgeCutoff  time.Time
	purgeAudit   *domain.AuditRecord
	purgeRemoved int64
}

func (m *auditStoreMock) Insert(_ context.Context, record domain.AuditRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *auditStoreMock) Query(_ context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	m.lastFilter = filter
	return &domain.AuditPage{
		Records: append([]domain.AuditRecord(nil), m.records...),
		Total:   len(m.records),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func (m *auditStoreMock) Iterate(_ context.Context, _ domain.AuditFilter, fn func(domain.AuditRecord) error) error {
	if m.iterateErr != nil {
		return m.iterateErr
	}
	for _, record := range m.records {
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

func (m *auditStoreMock) PurgeBefore(_ context.Context, cutoff time.Time, audit domain.AuditRecord) (int64, error) {
	if m.purgeErr != nil {
		return 0, m.purgeErr
	}
	m.purgeCutoff = cutoff
	copied := audit
	m.purgeAudit = &copied
	m.records = append(m.records, audit)
	return m.purgeRemoved, nil
}

type auditEventsMock struct {
	audited    []domain.AuditRecordedEvent
	publishErr error
}

func (m *auditEventsMock) PublishAuditRecorded(_ context.Context, event domain.AuditRecordedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.audited = append(m.audited, event)
	return nil
}

func (m *auditEventsMock) PublishLockoutTriggered(context.Context, domain.LockoutTriggeredEvent) error {
	return errors.New("unexpected call: PublishLockoutTriggered")
}

func (m *auditEventsMock) PublishCredentialChanged(context.Context, domain.CredentialChangedEvent) error {
	return errors.New("unexpected call: PublishCredentialChanged")
}

func TestAuditServiceRecordChangeDiff(t *testing.T) {
	store := &auditStoreMock{}
	events := &auditEventsMock{}

	svc := NewAuditService(nil, store, events, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	actor := "admin-1"
	id, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		ActorID:    &actor,
		TargetType: "user",
		TargetID:   "user-1",
		Before:     map[string]any{"username": "jdoe", "role": "member"},
		After:      map[string]any{"username": "jdoe", "role": "admin"},
		SourceIP:   "198.51.100.7",
		RequestID:  "req-9",
	})
	if err != nil {
		t.Fatalf("RecordChange returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected record id to be returned")
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one record, got %d", len(store.records))
	}
	record := store.records[0]
	if record.ID != id {
		t.Fatalf("expected stored id %s, got %s", id, record.ID)
	}
	if record.Action != domain.AuditActionUpdate {
		t.Fatalf("expected derived update action, got %s", record.Action)
	}
	if !record.OccurredAt.Equal(fixed) {
		t.Fatalf("expected occurred_at %v, got %v", fixed, record.OccurredAt)
	}

	expected := []domain.FieldChange{{Field: "role", Before: `"member"`, After: `"admin"`}}
	if !reflect.DeepEqual(record.ChangedFields, expected) {
		t.Fatalf("expected diff %v, got %v", expected, record.ChangedFields)
	}

	if len(events.audited) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events.audited))
	}
	if events.audited[0].RecordID != id {
		t.Fatalf("expected event for record %s, got %s", id, events.audited[0].RecordID)
	}
}

func TestAuditServiceRecordChangeEmptyDiff(t *testing.T) {
	store := &auditStoreMock{}

	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	image := map[string]any{"username": "jdoe", "role": "member"}
	id, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		TargetType: "user",
		TargetID:   "user-1",
		Before:     image,
		After:      map[string]any{"username": "jdoe", "role": "member"},
	})
	if err != nil {
		t.Fatalf("RecordChange returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected record id to be returned")
	}

	if len(store.records) != 1 {
		t.Fatalf("expected identical images to still produce a record, got %d", len(store.records))
	}
	record := store.records[0]
	if record.ChangedFields == nil {
		t.Fatalf("expected empty diff, got nil")
	}
	if len(record.ChangedFields) != 0 {
		t.Fatalf("expected empty diff, got %v", record.ChangedFields)
	}
}

func TestAuditServiceRecordChangeRedactsSensitive(t *testing.T) {
	store := &auditStoreMock{}

	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	_, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		TargetType: "identity",
		TargetID:   "id-3",
		Before:     map[string]any{"password_hash": "old-secret"},
		After:      map[string]any{"password_hash": "new-secret"},
	})
	if err != nil {
		t.Fatalf("RecordChange returned error: %v", err)
	}

	expected := []domain.FieldChange{{
		Field:  "password_hash",
		Before: domain.RedactionMarker,
		After:  domain.RedactionMarker,
	}}
	if !reflect.DeepEqual(store.records[0].ChangedFields, expected) {
		t.Fatalf("expected redacted diff, got %v", store.records[0].ChangedFields)
	}
}

func TestAuditServiceRecordChangeSensitiveFieldsFromConfig(t *testing.T) {
	store := &auditStoreMock{}

	cfg := &config.AppConfig{}
	cfg.Audit.SensitiveFields = []string{"role"}

	svc := NewAuditService(cfg, store, &auditEventsMock{}, nil)

	_, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		TargetType: "user",
		TargetID:   "user-1",
		Before:     map[string]any{"role": "member", "password_hash": "old"},
		After:      map[string]any{"role": "admin", "password_hash": "new"},
	})
	if err != nil {
		t.Fatalf("RecordChange returned error: %v", err)
	}

	expected := []domain.FieldChange{
		{Field: "password_hash", Before: `"old"`, After: `"new"`},
		{Field: "role", Before: domain.RedactionMarker, After: domain.RedactionMarker},
	}
	if !reflect.DeepEqual(store.records[0].ChangedFields, expected) {
		t.Fatalf("expected configured redaction set to apply, got %v", store.records[0].ChangedFields)
	}
}

func TestAuditServiceRecordChangeDerivesAction(t *testing.T) {
	cases := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   domain.AuditAction
	}{
		{"create", nil, map[string]any{"username": "jdoe"}, domain.AuditActionCreate},
		{"delete", map[string]any{"username": "jdoe"}, nil, domain.AuditActionDelete},
		{"update", map[string]any{"role": "member"}, map[string]any{"role": "admin"}, domain.AuditActionUpdate},
	}

	for _, tc := range cases {
		store := &auditStoreMock{}
		svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

		_, err := svc.RecordChange(context.Background(), ChangeRecordInput{
			TargetType: "user",
			TargetID:   "user-1",
			Before:     tc.before,
			After:      tc.after,
		})
		if err != nil {
			t.Fatalf("%s: RecordChange returned error: %v", tc.name, err)
		}
		if store.records[0].Action != tc.want {
			t.Fatalf("%s: expected action %s, got %s", tc.name, tc.want, store.records[0].Action)
		}
	}
}

func TestAuditServiceRecordChangeKeepsEventID(t *testing.T) {
	store := &auditStoreMock{}

	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	occurred := time.Date(2023, 7, 9, 18, 45, 0, 0, time.UTC)
	id, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		EventID:    " evt-1 ",
		TargetType: "user",
		TargetID:   "user-1",
		After:      map[string]any{"username": "jdoe"},
		OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("RecordChange returned error: %v", err)
	}

	if id != "evt-1" {
		t.Fatalf("expected supplied event id to be kept, got %s", id)
	}
	if store.records[0].ID != "evt-1" {
		t.Fatalf("expected stored id evt-1, got %s", store.records[0].ID)
	}
	if !store.records[0].OccurredAt.Equal(occurred) {
		t.Fatalf("expected supplied timestamp %v, got %v", occurred, store.records[0].OccurredAt)
	}
}

func TestAuditServiceRecordChangeInsertFailure(t *testing.T) {
	store := &auditStoreMock{insertErr: errors.New("insert failed")}
	events := &auditEventsMock{}

	svc := NewAuditService(nil, store, events, nil)

	_, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		TargetType: "user",
		TargetID:   "user-1",
		After:      map[string]any{"username": "jdoe"},
	})

	var auditErr *domain.AuditWriteError
	if !errors.As(err, &auditErr) {
		t.Fatalf("expected AuditWriteError, got %v", err)
	}
	if auditErr.Action != domain.AuditActionCreate {
		t.Fatalf("expected create action in error, got %s", auditErr.Action)
	}
	if len(events.audited) != 0 {
		t.Fatalf("expected no event for unwritten record, got %d", len(events.audited))
	}
}

func TestAuditServiceRecordChangeRequiresTarget(t *testing.T) {
	svc := NewAuditService(nil, &auditStoreMock{}, &auditEventsMock{}, nil)

	if _, err := svc.RecordChange(context.Background(), ChangeRecordInput{TargetID: "user-1"}); err == nil {
		t.Fatalf("expected error for missing target type")
	}
	if _, err := svc.RecordChange(context.Background(), ChangeRecordInput{TargetType: "user"}); err == nil {
		t.Fatalf("expected error for missing target id")
	}
}

func TestAuditServiceRecordChangeStrictPublishFailure(t *testing.T) {
	store := &auditStoreMock{}
	events := &auditEventsMock{publishErr: errors.New("broker down")}

	cfg := &config.AppConfig{}
	cfg.Audit.DegradationPolicy = "strict"

	svc := NewAuditService(cfg, store, events, nil)

	_, err := svc.RecordChange(context.Background(), ChangeRecordInput{
		TargetType: "user",
		TargetID:   "user-1",
		After:      map[string]any{"username": "jdoe"},
	})
	if !errors.Is(err, events.publishErr) {
		t.Fatalf("expected publish failure to propagate, got %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected record inserted before publish, got %d", len(store.records))
	}
}

func TestAuditServiceQueryLimits(t *testing.T) {
	store := &auditStoreMock{}
	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	if _, err := svc.Query(context.Background(), domain.AuditFilter{}); err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if store.lastFilter.Limit != 50 {
		t.Fatalf("expected default limit 50, got %d", store.lastFilter.Limit)
	}

	if _, err := svc.Query(context.Background(), domain.AuditFilter{Limit: 9999, Offset: -4}); err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if store.lastFilter.Limit != 500 {
		t.Fatalf("expected limit capped at 500, got %d", store.lastFilter.Limit)
	}
	if store.lastFilter.Offset != 0 {
		t.Fatalf("expected negative offset clamped to 0, got %d", store.lastFilter.Offset)
	}

	cfg := &config.AppConfig{}
	cfg.Audit.QueryDefaultLimit = 10
	cfg.Audit.QueryMaxLimit = 20

	svc = NewAuditService(cfg, store, &auditEventsMock{}, nil)

	if _, err := svc.Query(context.Background(), domain.AuditFilter{}); err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if store.lastFilter.Limit != 10 {
		t.Fatalf("expected configured default limit 10, got %d", store.lastFilter.Limit)
	}
	if _, err := svc.Query(context.Background(), domain.AuditFilter{Limit: 25}); err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if store.lastFilter.Limit != 20 {
		t.Fatalf("expected configured cap 20, got %d", store.lastFilter.Limit)
	}
}

func TestAuditServiceExportCSV(t *testing.T) {
	actor := "admin-1"
	store := &auditStoreMock{records: []domain.AuditRecord{
		{
			ID:         "rec-1",
			OccurredAt: time.Date(2023, 7, 9, 8, 30, 0, 0, time.UTC),
			ActorID:    &actor,
			Action:     domain.AuditActionUpdate,
			TargetType: "user",
			TargetID:   "user-1",
			ChangedFields: []domain.FieldChange{
				{Field: "role", Before: `"member"`, After: `"admin"`},
			},
			SourceIP:  "198.51.100.7",
			RequestID: "req-1",
		},
		{
			ID:         "rec-2",
			OccurredAt: time.Date(2023, 7, 9, 9, 15, 0, 0, time.UTC),
			Action:     domain.AuditActionCredentialChange,
			TargetType: "identity",
			TargetID:   "id-2",
			ChangedFields: []domain.FieldChange{
				{Field: "password_hash", Before: domain.RedactionMarker, After: domain.RedactionMarker},
			},
			RequestID: "req-2",
		},
	}}
	events := &auditEventsMock{}

	svc := NewAuditService(nil, store, events, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	var buf bytes.Buffer
	rows, err := svc.ExportCSV(context.Background(), ExportInput{
		ActorID:   "admin-1",
		IP:        "127.0.0.1",
		RequestID: "req-exp",
	}, &buf)
	if err != nil {
		t.Fatalf("ExportCSV returned error: %v", err)
	}

	// The export audit record lands before streaming starts, so an
	// unfiltered export includes it as the final row.
	if rows != 3 {
		t.Fatalf("expected 3 data rows, got %d", rows)
	}

	lines, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse exported csv: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}

	header := []string{"id", "timestamp", "actor", "action", "target_type", "target_id", "changed_fields", "source"}
	if !reflect.DeepEqual(lines[0], header) {
		t.Fatalf("expected header %v, got %v", header, lines[0])
	}

	row1 := []string{"rec-1", "2023-07-09T08:30:00Z", "admin-1", "update", "user", "user-1", `role:"member"=>"admin"`, "198.51.100.7 req-1"}
	if !reflect.DeepEqual(lines[1], row1) {
		t.Fatalf("expected row %v, got %v", row1, lines[1])
	}

	row2 := []string{"rec-2", "2023-07-09T09:15:00Z", "", "credential_change", "identity", "id-2", "password_hash:[REDACTED]=>[REDACTED]", "req-2"}
	if !reflect.DeepEqual(lines[2], row2) {
		t.Fatalf("expected row %v, got %v", row2, lines[2])
	}

	exportRow := lines[3]
	if exportRow[0] == "" {
		t.Fatalf("expected export record id to be set")
	}
	if exportRow[1] != "2023-07-10T12:00:00Z" {
		t.Fatalf("expected export timestamp, got %s", exportRow[1])
	}
	if exportRow[2] != "admin-1" || exportRow[3] != "export" {
		t.Fatalf("expected export row by admin-1, got %v", exportRow)
	}
	if exportRow[4] != "audit_log" || exportRow[5] != "csv" {
		t.Fatalf("expected audit_log/csv target, got %v", exportRow)
	}
	if exportRow[7] != "127.0.0.1 req-exp" {
		t.Fatalf("expected export source, got %s", exportRow[7])
	}

	if len(events.audited) != 1 {
		t.Fatalf("expected one audit event for the export, got %d", len(events.audited))
	}
	if events.audited[0].Action != domain.AuditActionExport {
		t.Fatalf("expected export event, got %s", events.audited[0].Action)
	}
}

func TestAuditServiceExportCSVAuditFailure(t *testing.T) {
	store := &auditStoreMock{insertErr: errors.New("insert failed")}

	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	var buf bytes.Buffer
	rows, err := svc.ExportCSV(context.Background(), ExportInput{ActorID: "admin-1"}, &buf)

	var auditErr *domain.AuditWriteError
	if !errors.As(err, &auditErr) {
		t.Fatalf("expected AuditWriteError, got %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no rows, got %d", rows)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written before the export audit, got %q", buf.String())
	}
}

func TestAuditServiceExportCSVIterateFailure(t *testing.T) {
	store := &auditStoreMock{iterateErr: errors.New("connection reset")}

	svc := NewAuditService(nil, store, &auditEventsMock{}, nil)

	var buf bytes.Buffer
	_, err := svc.ExportCSV(context.Background(), ExportInput{ActorID: "admin-1"}, &buf)
	if !errors.Is(err, store.iterateErr) {
		t.Fatalf("expected iterate failure to propagate, got %v", err)
	}
}

func TestAuditServicePurgeBefore(t *testing.T) {
	store := &auditStoreMock{purgeRemoved: 7}
	events := &auditEventsMock{}

	svc := NewAuditService(nil, store, events, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	cutoff := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	removed, err := svc.PurgeBefore(context.Background(), PurgeInput{
		Cutoff:  cutoff,
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("PurgeBefore returned error: %v", err)
	}

	if removed != 7 {
		t.Fatalf("expected 7 removed, got %d", removed)
	}
	if !store.purgeCutoff.Equal(cutoff) {
		t.Fatalf("expected cutoff %v, got %v", cutoff, store.purgeCutoff)
	}
	if store.purgeAudit == nil {
		t.Fatalf("expected purge audit record")
	}
	if store.purgeAudit.Action != domain.AuditActionPurge {
		t.Fatalf("expected purge action, got %s", store.purgeAudit.Action)
	}
	if store.purgeAudit.TargetType != "audit_log" {
		t.Fatalf("expected audit_log target, got %s", store.purgeAudit.TargetType)
	}
	if store.purgeAudit.TargetID != "2023-04-01T00:00:00Z" {
		t.Fatalf("expected cutoff as target id, got %s", store.purgeAudit.TargetID)
	}
	if store.purgeAudit.ActorID == nil || *store.purgeAudit.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %v", store.purgeAudit.ActorID)
	}

	if len(events.audited) != 1 {
		t.Fatalf("expected one audit event for the purge, got %d", len(events.audited))
	}
	if events.audited[0].Action != domain.AuditActionPurge {
		t.Fatalf("expected purge event, got %s", events.audited[0].Action)
	}
}

func TestAuditServicePurgeBeforeDefaultsCutoff(t *testing.T) {
	store := &auditStoreMock{purgeRemoved: 2}

	cfg := &config.AppConfig{}
	cfg.Audit.Retention = 90 * 24 * time.Hour

	svc := NewAuditService(cfg, store, &auditEventsMock{}, nil)
	fixed := time.Date(2023, 7, 10, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	removed, err := svc.PurgeBefore(context.Background(), PurgeInput{ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("PurgeBefore returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	expected := fixed.Add(-90 * 24 * time.Hour)
	if !store.purgeCutoff.Equal(expected) {
		t.Fatalf("expected retention cutoff %v, got %v", expected, store.purgeCutoff)
	}
}

func TestAuditServicePurgeBeforeRequiresCutoff(t *testing.T) {
	svc := NewAuditService(nil, &auditStoreMock{}, &auditEventsMock{}, nil)

	if _, err := svc.PurgeBefore(context.Background(), PurgeInput{ActorID: "admin-1"}); !errors.Is(err, ErrCutoffRequired) {
		t.Fatalf("expected ErrCutoffRequired without cutoff or retention, got %v", err)
	}
}
