package domain

import "time"

// IdentityStatus enumerates possible account states.
type IdentityStatus string

const (
	IdentityStatusPending  IdentityStatus = "pending"
	IdentityStatusActive   IdentityStatus = "active"
	IdentityStatusLocked   IdentityStatus = "locked"
	IdentityStatusDisabled IdentityStatus = "disabled"
)

// Identity mirrors the persisted representation in the identities table.
// The row is owned by the surrounding platform; this service reads the
// display/contact fields and writes only the credential columns.
type Identity struct {
	ID                 string
	Username           string
	Email              string
	Phone              *string
	DisplayName        string
	Role               string
	PasswordHash       string
	Status             IdentityStatus
	RegisteredAt       time.Time
	LastPasswordChange time.Time
}

// PasswordContext carries the identity attributes consulted by the
// personal-information exclusion and strength rules.
type PasswordContext struct {
	Username    string
	Email       string
	Phone       *string
	DisplayName string
}

// Context extracts the password evaluation context from an identity.
func (i Identity) Context() PasswordContext {
	return PasswordContext{
		Username:    i.Username,
		Email:       i.Email,
		Phone:       i.Phone,
		DisplayName: i.DisplayName,
	}
}

// PasswordHistoryEntry tracks a historical password hash for reuse prevention.
// Entries are append-only; the retention trim removes only those beyond the
// configured depth.
type PasswordHistoryEntry struct {
	ID           string
	IdentityID   string
	PasswordHash string
	SetAt        time.Time
}

// CredentialChange describes a committed credential update together with the
// audit record documenting it. The repository applies the whole change in one
// transaction.
type CredentialChange struct {
	IdentityID   string
	NewHash      string
	ChangedAt    time.Time
	HistoryLimit int
	Audit        AuditRecord
}
