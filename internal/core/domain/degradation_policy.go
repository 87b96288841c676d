package domain

import "strings"

// DegradationPolicyMode names the behaviors available when the audit
// event fan-out cannot reach the message bus. The PostgreSQL row is
// always the source of truth; the mode only governs the Kafka
// replication step.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient logs a failed fan-out publish and continues.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict propagates fan-out publish failures to the caller.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// ParseDegradationPolicyMode maps free-form config text onto a mode.
// Anything other than "strict" reads as lenient.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	if strings.EqualFold(strings.TrimSpace(value), string(DegradationPolicyModeStrict)) {
		return DegradationPolicyModeStrict
	}
	return DegradationPolicyModeLenient
}

// DegradationPolicy is the resolved fan-out failure behavior. The zero
// value is lenient.
type DegradationPolicy struct {
	strict bool
}

func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	return DegradationPolicy{strict: mode == DegradationPolicyModeStrict}
}

// IsStrict reports whether a failed publish aborts the enclosing operation.
func (p DegradationPolicy) IsStrict() bool {
	return p.strict
}
