package domain

// Identity roles recognised by the admin gate. Role changes on tracked
// identities are audited as permission_change events.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)
