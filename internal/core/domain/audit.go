package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// AuditAction enumerates the event kinds captured by the audit trail.
type AuditAction string

const (
	AuditActionCreate           AuditAction = "create"
	AuditActionUpdate           AuditAction = "update"
	AuditActionDelete           AuditAction = "delete"
	AuditActionAuthSuccess      AuditAction = "auth_success"
	AuditActionAuthFailure      AuditAction = "auth_failure"
	AuditActionLockout          AuditAction = "lockout"
	AuditActionPermissionChange AuditAction = "permission_change"
	AuditActionCredentialChange AuditAction = "credential_change"
	AuditActionExport           AuditAction = "export"
	AuditActionPurge            AuditAction = "purge"
)

// RedactionMarker replaces sensitive field values in stored diffs and exports.
const RedactionMarker = "[REDACTED]"

// FieldChange records a single field whose serialized value differed between
// the pre-image and post-image of a tracked update.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// AuditRecord is an immutable append-only entry documenting a tracked state
// change or security-relevant event. Once written it is never updated or
// deleted by the application; retention purges are a separate, audited
// administrative path.
type AuditRecord struct {
	ID            string
	OccurredAt    time.Time
	ActorID       *string
	Action        AuditAction
	TargetType    string
	TargetID      string
	ChangedFields []FieldChange
	SourceIP      string
	RequestID     string
}

// AuditFilter narrows audit queries and exports.
type AuditFilter struct {
	ActorID    string
	Action     AuditAction
	TargetType string
	TargetID   string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// AuditPage is one page of query results together with the total match count.
type AuditPage struct {
	Records []AuditRecord
	Total   int
	Limit   int
	Offset  int
}

// ComputeFieldDiff compares a pre-image and post-image field by field and
// returns the fields whose serialized values differ, sorted by field name.
// Both images are canonicalized through JSON so the comparison is by value,
// never by reference. Fields present in the sensitive set are reported with
// both values replaced by the redaction marker. Identical images yield an
// empty, non-nil slice.
func ComputeFieldDiff(before, after map[string]any, sensitive map[string]struct{}) ([]FieldChange, error) {
	fields := make(map[string]struct{}, len(before)+len(after))
	for name := range before {
		fields[name] = struct{}{}
	}
	for name := range after {
		fields[name] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := make([]FieldChange, 0)
	for _, name := range names {
		beforeValue, err := canonicalValue(before[name])
		if err != nil {
			return nil, fmt.Errorf("serialize before value of %q: %w", name, err)
		}
		afterValue, err := canonicalValue(after[name])
		if err != nil {
			return nil, fmt.Errorf("serialize after value of %q: %w", name, err)
		}

		if beforeValue == afterValue {
			continue
		}

		if _, ok := sensitive[name]; ok {
			changes = append(changes, FieldChange{
				Field:  name,
				Before: RedactionMarker,
				After:  RedactionMarker,
			})
			continue
		}

		changes = append(changes, FieldChange{
			Field:  name,
			Before: beforeValue,
			After:  afterValue,
		})
	}

	return changes, nil
}

func canonicalValue(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
