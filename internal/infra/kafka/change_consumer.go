package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// ChangeRecorder ingests one entity change into the audit trail.
type ChangeRecorder interface {
	RecordChange(ctx context.Context, input usecase.ChangeRecordInput) (string, error)
}

// ChangeStreamConsumer subscribes to the platform entity change topic and
// appends each observed write to the audit trail. Offsets are committed only
// after the record is durably inserted, so a storage outage replays the
// affected messages instead of dropping them.
type ChangeStreamConsumer struct {
	group    sarama.ConsumerGroup
	topic    string
	recorder ChangeRecorder
	logger   *zap.Logger
}

// NewChangeStreamConsumer constructs a consumer group member subscribed to the change topic.
func NewChangeStreamConsumer(cfg config.KafkaSettings, recorder ChangeRecorder, logger *zap.Logger) (*ChangeStreamConsumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	logger.Info("Kafka change stream consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.ChangeTopic),
		zap.String("group", cfg.ConsumerGroup),
	)

	return &ChangeStreamConsumer{
		group:    group,
		topic:    cfg.ChangeTopic,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Run joins the consumer group and blocks until the context is cancelled.
func (c *ChangeStreamConsumer) Run(ctx context.Context) error {
	if c.group == nil {
		return fmt.Errorf("consumer group is not configured")
	}

	topics := []string{c.topic}
	for {
		if err := c.group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("change stream consume failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Close leaves the consumer group.
func (c *ChangeStreamConsumer) Close() error {
	if c.group == nil {
		return nil
	}
	return c.group.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ChangeStreamConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ChangeStreamConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes one partition claim. Malformed or invalid messages
// are logged and skipped; storage failures abort the claim without marking
// the offset so the message is redelivered.
func (c *ChangeStreamConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				if retryableIngestError(err) {
					return err
				}
				c.logger.Warn("skipping change event",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

type changeEnvelope struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Payload   changePayload  `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type changePayload struct {
	ActorID    *string        `json:"actor_id,omitempty"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	SourceIP   string         `json:"source_ip,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// HandleMessage decodes a Kafka message and records the change.
func (c *ChangeStreamConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope changeEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode entity change event: %w", err)
	}

	actorID := envelope.Payload.ActorID
	if actorID == nil && envelope.UserID != "" {
		userID := envelope.UserID
		actorID = &userID
	}

	occurredAt := envelope.Payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = envelope.Timestamp
	}

	event := domain.EntityChangeEvent{
		EventID:    envelope.EventID,
		EventType:  envelope.EventType,
		ActorID:    actorID,
		TargetType: envelope.Payload.TargetType,
		TargetID:   envelope.Payload.TargetID,
		Before:     envelope.Payload.Before,
		After:      envelope.Payload.After,
		OccurredAt: occurredAt,
		SourceIP:   envelope.Payload.SourceIP,
		RequestID:  envelope.Payload.RequestID,
		Metadata:   envelope.Metadata,
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent appends the entity change to the audit trail. The upstream
// event id becomes the record id, so redelivered messages insert at most once.
func (c *ChangeStreamConsumer) HandleEvent(ctx context.Context, event domain.EntityChangeEvent) error {
	if c.recorder == nil {
		return nil
	}

	recordID, err := c.recorder.RecordChange(ctx, usecase.ChangeRecordInput{
		EventID:    event.EventID,
		ActorID:    event.ActorID,
		Action:     actionFromEventType(event.EventType),
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Before:     event.Before,
		After:      event.After,
		OccurredAt: event.OccurredAt,
		SourceIP:   event.SourceIP,
		RequestID:  event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("record entity change: %w", err)
	}

	c.logger.Debug("entity change recorded",
		zap.String("record_id", recordID),
		zap.String("event_type", event.EventType),
		zap.String("target_type", event.TargetType),
		zap.String("target_id", event.TargetID),
	)

	return nil
}

// actionFromEventType maps a change stream event type suffix onto an audit
// action. Unknown suffixes fall through to the image-based derivation.
func actionFromEventType(eventType string) domain.AuditAction {
	switch {
	case strings.HasSuffix(eventType, ".created"):
		return domain.AuditActionCreate
	case strings.HasSuffix(eventType, ".updated"):
		return domain.AuditActionUpdate
	case strings.HasSuffix(eventType, ".deleted"):
		return domain.AuditActionDelete
	default:
		return ""
	}
}

func retryableIngestError(err error) bool {
	var writeErr *domain.AuditWriteError
	return errors.As(err, &writeErr)
}

var _ sarama.ConsumerGroupHandler = (*ChangeStreamConsumer)(nil)
