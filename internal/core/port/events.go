package port

import (
	"context"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAuditRecorded(ctx context.Context, event domain.AuditRecordedEvent) error
	PublishLockoutTriggered(ctx context.Context, event domain.LockoutTriggeredEvent) error
	PublishCredentialChanged(ctx context.Context, event domain.CredentialChangedEvent) error
}
