package domain

import "time"

// AuditRecordedEvent represents the payload for authguard.audit.recorded
// messages fanned out after a durable audit insert.
type AuditRecordedEvent struct {
	EventID       string
	RecordID      string
	OccurredAt    time.Time
	ActorID       *string
	Action        AuditAction
	TargetType    string
	TargetID      string
	ChangedFields []FieldChange
	SourceIP      string
	RequestID     string
	Metadata      map[string]any
}

// LockoutTriggeredEvent represents the payload for authguard.lockout.triggered
// messages emitted when a key crosses the failure threshold.
type LockoutTriggeredEvent struct {
	EventID     string
	Source      string
	Username    string
	Count       int64
	LockedUntil time.Time
	TriggeredAt time.Time
	Metadata    map[string]any
}

// CredentialChangedEvent represents the payload for
// authguard.credential.changed messages.
type CredentialChangedEvent struct {
	EventID    string
	IdentityID string
	ChangedAt  time.Time
	ChangedBy  string
	Initial    bool
	Metadata   map[string]any
}

// EntityChangeEvent is the envelope consumed from the platform entity change
// stream. Sibling services publish one message per tracked write; this
// service ingests them into the audit trail.
type EntityChangeEvent struct {
	EventID    string
	EventType  string
	ActorID    *string
	TargetType string
	TargetID   string
	Before     map[string]any
	After      map[string]any
	OccurredAt time.Time
	SourceIP   string
	RequestID  string
	Metadata   map[string]any
}
