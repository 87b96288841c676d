package security

import (
	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/core/port"
)

// Default password policy thresholds.
const (
	DefaultMinPasswordLength   = 12
	DefaultMinEntropyBits      = 50
	DefaultMinStrengthScore    = 2
	DefaultPersonalTokenMinLen = 4
)

// PolicyConfig tunes the individual password rules.
type PolicyConfig struct {
	MinLength           int
	MinEntropyBits      float64
	MinStrengthScore    int
	PersonalTokenMinLen int
}

// DefaultPolicyConfig returns the service defaults.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength:           DefaultMinPasswordLength,
		MinEntropyBits:      DefaultMinEntropyBits,
		MinStrengthScore:    DefaultMinStrengthScore,
		PersonalTokenMinLen: DefaultPersonalTokenMinLen,
	}
}

// Policy evaluates candidate passwords against the full ordered rule set:
// length, composition, personal info, common patterns, entropy, and reuse.
type Policy struct {
	cfg    PolicyConfig
	verify func(password, encoded string) (bool, error)
}

// NewPolicy builds a policy from the configuration. verify compares
// candidates against retained password hashes; passing nil selects the
// package Argon2id verifier.
func NewPolicy(cfg PolicyConfig, verify func(password, encoded string) (bool, error)) *Policy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinPasswordLength
	}
	if cfg.MinEntropyBits <= 0 {
		cfg.MinEntropyBits = DefaultMinEntropyBits
	}
	if cfg.PersonalTokenMinLen <= 0 {
		cfg.PersonalTokenMinLen = DefaultPersonalTokenMinLen
	}
	if verify == nil {
		verify = VerifyPassword
	}
	return &Policy{cfg: cfg, verify: verify}
}

// DefaultPolicy returns a policy with the service defaults and the Argon2id
// verifier.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultPolicyConfig(), nil)
}

// Evaluate runs every rule in order against the candidate. A nil return means
// the candidate passed; rejections come back as a *domain.ValidationError
// listing every violated rule.
func (p *Policy) Evaluate(candidate string, pctx domain.PasswordContext, history []domain.PasswordHistoryEntry) error {
	tokens := personalTokens(pctx, p.cfg.PersonalTokenMinLen)

	inputs := make([]string, 0, 4)
	if pctx.Username != "" {
		inputs = append(inputs, pctx.Username)
	}
	if pctx.Email != "" {
		inputs = append(inputs, pctx.Email)
	}
	if pctx.DisplayName != "" {
		inputs = append(inputs, pctx.DisplayName)
	}
	if pctx.Phone != nil && *pctx.Phone != "" {
		inputs = append(inputs, *pctx.Phone)
	}

	hashes := make([]string, 0, len(history))
	for _, entry := range history {
		hashes = append(hashes, entry.PasswordHash)
	}

	validator := NewPasswordValidator(
		MinLengthRule(p.cfg.MinLength),
		RequireCompositionRule(),
		ExcludePersonalInfoRule(tokens),
		CommonPatternRule(p.cfg.MinStrengthScore, inputs...),
		MinEntropyRule(p.cfg.MinEntropyBits),
		HistoryReuseRule(p.verify, hashes),
	)
	return validator.Validate(candidate)
}

var _ port.PasswordPolicy = (*Policy)(nil)
