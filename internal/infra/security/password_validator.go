package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Validate executes all rules in order. Policy violations accumulate so the
// caller sees every failed rule at once; any other error aborts immediately.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}

	var reasons []domain.PolicyViolation
	for _, rule := range v.rules {
		err := rule.Validate(password)
		if err == nil {
			continue
		}
		var violation *domain.PolicyViolation
		if errors.As(err, &violation) {
			reasons = append(reasons, *violation)
			continue
		}
		return err
	}

	if len(reasons) > 0 {
		return &domain.ValidationError{Reasons: reasons}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &domain.PolicyViolation{
				Code:    domain.ReasonTooShort,
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireCompositionRule ensures the password draws from all four character
// classes: lowercase, uppercase, digits, and special characters.
func RequireCompositionRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		var hasLower, hasUpper, hasDigit, hasSpecial bool
		for _, r := range password {
			switch {
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsDigit(r):
				hasDigit = true
			default:
				hasSpecial = true
			}
		}

		missing := make([]string, 0, 4)
		if !hasLower {
			missing = append(missing, "lowercase")
		}
		if !hasUpper {
			missing = append(missing, "uppercase")
		}
		if !hasDigit {
			missing = append(missing, "digit")
		}
		if !hasSpecial {
			missing = append(missing, "special")
		}
		if len(missing) == 0 {
			return nil
		}

		return &domain.PolicyViolation{
			Code:    domain.ReasonMissingCharacterClass,
			Message: fmt.Sprintf("password must include %s characters", strings.Join(missing, ", ")),
		}
	})
}

// ExcludePersonalInfoRule rejects passwords containing any of the provided
// profile-derived tokens as a case-insensitive substring.
func ExcludePersonalInfoRule(tokens []string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		lowered := strings.ToLower(password)
		for _, token := range tokens {
			if token == "" {
				continue
			}
			if strings.Contains(lowered, token) {
				return &domain.PolicyViolation{
					Code:    domain.ReasonContainsPersonalInfo,
					Message: "password must not contain your name, username, email, or phone number",
				}
			}
		}
		return nil
	})
}

// CommonPatternRule rejects dictionary passwords and their simple mutations.
// Every normalized form of the candidate is checked against the built-in
// dictionary; a zxcvbn score below minScore also counts as a common pattern.
func CommonPatternRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, form := range candidateForms(password) {
			if isCommonPassword(form) {
				return &domain.PolicyViolation{
					Code:    domain.ReasonCommonPattern,
					Message: "password is a commonly used password or a simple variation of one",
				}
			}
		}

		if minScore > 0 {
			if minScore > 4 {
				minScore = 4
			}
			result := zxcvbn.PasswordStrength(password, userInputs)
			if result.Score < minScore {
				return &domain.PolicyViolation{
					Code:    domain.ReasonCommonPattern,
					Message: "password follows a predictable pattern; choose a less guessable value",
				}
			}
		}
		return nil
	})
}

// MinEntropyRule enforces a minimum estimated entropy in bits.
func MinEntropyRule(minBits float64) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minBits <= 0 {
			return nil
		}
		if bits := EstimateEntropyBits(password); bits < minBits {
			return &domain.PolicyViolation{
				Code:    domain.ReasonInsufficientEntropy,
				Message: fmt.Sprintf("password entropy %.1f bits is below the required %.0f bits", bits, minBits),
			}
		}
		return nil
	})
}

// HistoryReuseRule rejects candidates matching any of the retained hashes.
// Comparison always goes through verify so the rule keeps working across
// hashing parameter changes.
func HistoryReuseRule(verify func(password, encoded string) (bool, error), hashes []string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len(hashes) == 0 {
			return nil
		}
		if verify == nil {
			return fmt.Errorf("password history verifier not configured")
		}
		for _, encoded := range hashes {
			match, err := verify(password, encoded)
			if err != nil {
				return fmt.Errorf("verify password against history: %w", err)
			}
			if match {
				return &domain.PolicyViolation{
					Code:    domain.ReasonPasswordReused,
					Message: "password was used recently; choose one you have not used before",
				}
			}
		}
		return nil
	})
}
