package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAuditRecorded publishes authguard.audit.recorded events.
func (p *EventPublisher) PublishAuditRecorded(ctx context.Context, event domain.AuditRecordedEvent) error {
	payload := struct {
		RecordID      string               `json:"record_id"`
		OccurredAt    time.Time            `json:"occurred_at"`
		ActorID       *string              `json:"actor_id,omitempty"`
		Action        domain.AuditAction   `json:"action"`
		TargetType    string               `json:"target_type"`
		TargetID      string               `json:"target_id"`
		ChangedFields []domain.FieldChange `json:"changed_fields,omitempty"`
		SourceIP      string               `json:"source_ip,omitempty"`
		RequestID     string               `json:"request_id,omitempty"`
		Metadata      map[string]any       `json:"metadata,omitempty"`
	}{
		RecordID:      event.RecordID,
		OccurredAt:    event.OccurredAt.UTC(),
		ActorID:       event.ActorID,
		Action:        event.Action,
		TargetType:    event.TargetType,
		TargetID:      event.TargetID,
		ChangedFields: event.ChangedFields,
		SourceIP:      event.SourceIP,
		RequestID:     event.RequestID,
		Metadata:      event.Metadata,
	}

	actorID := ""
	if event.ActorID != nil {
		actorID = *event.ActorID
	}

	return p.publish(ctx, event.EventID, "authguard.audit.recorded", actorID, event.OccurredAt, payload)
}

// PublishLockoutTriggered publishes authguard.lockout.triggered events.
func (p *EventPublisher) PublishLockoutTriggered(ctx context.Context, event domain.LockoutTriggeredEvent) error {
	payload := struct {
		Source      string         `json:"source,omitempty"`
		Username    string         `json:"username,omitempty"`
		Count       int64          `json:"count"`
		LockedUntil time.Time      `json:"locked_until"`
		TriggeredAt time.Time      `json:"triggered_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Source:      event.Source,
		Username:    event.Username,
		Count:       event.Count,
		LockedUntil: event.LockedUntil.UTC(),
		TriggeredAt: event.TriggeredAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "authguard.lockout.triggered", "", event.TriggeredAt, payload)
}

// PublishCredentialChanged publishes authguard.credential.changed events.
func (p *EventPublisher) PublishCredentialChanged(ctx context.Context, event domain.CredentialChangedEvent) error {
	payload := struct {
		IdentityID string         `json:"identity_id"`
		ChangedAt  time.Time      `json:"changed_at"`
		ChangedBy  string         `json:"changed_by,omitempty"`
		Initial    bool           `json:"initial"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID: event.IdentityID,
		ChangedAt:  event.ChangedAt.UTC(),
		ChangedBy:  event.ChangedBy,
		Initial:    event.Initial,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "authguard.credential.changed", event.IdentityID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
