package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

// AuditStore is the durable append-only store behind the audit recorder.
// The interface deliberately has no update path: records are immutable once
// inserted, and the only delete is the separately-audited retention purge.
type AuditStore interface {
	// Insert appends one record. Duplicate record ids are tolerated silently
	// so at-least-once producers (the change-stream consumer) stay idempotent.
	Insert(ctx context.Context, record domain.AuditRecord) error
	Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error)
	// Iterate streams matching records oldest-first without buffering the
	// full result, for CSV export of large ranges.
	Iterate(ctx context.Context, filter domain.AuditFilter, fn func(domain.AuditRecord) error) error
	// PurgeBefore removes records older than cutoff and inserts the supplied
	// purge audit record in the same transaction. Returns rows removed.
	PurgeBefore(ctx context.Context, cutoff time.Time, audit domain.AuditRecord) (int64, error)
}
