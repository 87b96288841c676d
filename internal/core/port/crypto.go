package port

import "github.com/arklim/social-platform-authguard/internal/core/domain"

// PasswordPolicy evaluates a candidate secret against the full rule set.
// A nil return means the candidate is accepted; rejections surface as a
// *domain.ValidationError carrying every violated rule.
type PasswordPolicy interface {
	Evaluate(candidate string, pctx domain.PasswordContext, history []domain.PasswordHistoryEntry) error
}

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// ConfigurablePasswordHasher allows runtime adjustment of Argon2id parameters.
type ConfigurablePasswordHasher interface {
	PasswordHasher
	Configure(params Argon2Params) error
	Parameters() Argon2Params
}
