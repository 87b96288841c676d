package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAuditRecorded logs authguard.audit.recorded events.
func (p *StubPublisher) PublishAuditRecorded(_ context.Context, event domain.AuditRecordedEvent) error {
	actorID := ""
	if event.ActorID != nil {
		actorID = *event.ActorID
	}

	payload := map[string]any{
		"record_id":      event.RecordID,
		"occurred_at":    event.OccurredAt,
		"actor_id":       event.ActorID,
		"action":         event.Action,
		"target_type":    event.TargetType,
		"target_id":      event.TargetID,
		"changed_fields": event.ChangedFields,
		"source_ip":      event.SourceIP,
		"request_id":     event.RequestID,
		"metadata":       event.Metadata,
	}
	p.logEvent("authguard.audit.recorded", actorID, event.OccurredAt, payload)
	return nil
}

// PublishLockoutTriggered logs authguard.lockout.triggered events.
func (p *StubPublisher) PublishLockoutTriggered(_ context.Context, event domain.LockoutTriggeredEvent) error {
	payload := map[string]any{
		"source":       event.Source,
		"username":     event.Username,
		"count":        event.Count,
		"locked_until": event.LockedUntil,
		"triggered_at": event.TriggeredAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("authguard.lockout.triggered", "", event.TriggeredAt, payload)
	return nil
}

// PublishCredentialChanged logs authguard.credential.changed events.
func (p *StubPublisher) PublishCredentialChanged(_ context.Context, event domain.CredentialChangedEvent) error {
	payload := map[string]any{
		"identity_id": event.IdentityID,
		"changed_at":  event.ChangedAt,
		"changed_by":  event.ChangedBy,
		"initial":     event.Initial,
		"metadata":    event.Metadata,
	}
	p.logEvent("authguard.credential.changed", event.IdentityID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
