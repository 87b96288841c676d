package port

import (
	"context"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

// IdentityRepository exposes the identity reads and credential writes this
// service performs. Identity lifecycle stays with the surrounding platform.
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	// SetCredential applies the credential update, the history append, the
	// retention trim, and the audit insert in a single transaction. A history
	// failure rolls back the credential update; an audit failure rolls back
	// everything.
	SetCredential(ctx context.Context, change domain.CredentialChange) error
	ListPasswordHistory(ctx context.Context, identityID string, limit int) ([]domain.PasswordHistoryEntry, error)
	AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	TrimPasswordHistory(ctx context.Context, identityID string, maxEntries int) error
}
