package domain

import (
	"fmt"
	"strings"
	"time"
)

// Password policy violation reason codes. Codes are stable API surface;
// callers branch on them for user-facing feedback.
const (
	ReasonTooShort              = "too_short"
	ReasonMissingCharacterClass = "missing_character_class"
	ReasonContainsPersonalInfo  = "contains_personal_info"
	ReasonCommonPattern         = "common_pattern"
	ReasonInsufficientEntropy   = "insufficient_entropy"
	ReasonPasswordReused        = "password_reused"
)

// PolicyViolation is a single failed password rule.
type PolicyViolation struct {
	Code    string
	Message string
}

// Error implements error for PolicyViolation.
func (v *PolicyViolation) Error() string {
	if v == nil {
		return ""
	}
	return v.Message
}

// ValidationError aggregates every policy rule a candidate violated.
// It is always recoverable; handlers surface the reasons to the caller.
type ValidationError struct {
	Reasons []PolicyViolation
}

// Error implements error for ValidationError.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Reasons) == 0 {
		return "password rejected"
	}
	codes := make([]string, 0, len(e.Reasons))
	for _, reason := range e.Reasons {
		codes = append(codes, reason.Code)
	}
	return "password rejected: " + strings.Join(codes, ", ")
}

// Has reports whether the validation error includes the given reason code.
func (e *ValidationError) Has(code string) bool {
	if e == nil {
		return false
	}
	for _, reason := range e.Reasons {
		if reason.Code == code {
			return true
		}
	}
	return false
}

// LockoutError signals that authentication is refused until the cooloff
// elapses. RetryAfter is always populated so callers can schedule retries;
// user-facing copy may still obscure whether credentials were correct.
type LockoutError struct {
	Key        AttemptKey
	RetryAfter time.Duration
}

// Error implements error for LockoutError.
func (e *LockoutError) Error() string {
	if e == nil {
		return "authentication locked"
	}
	return fmt.Sprintf("authentication locked, retry after %s", e.RetryAfter)
}

// CounterUnavailableError signals that the attempt counter store could not be
// reached. The governor fails closed: callers must deny authentication rather
// than let store unavailability bypass lockout.
type CounterUnavailableError struct {
	Cause error
}

// Error implements error for CounterUnavailableError.
func (e *CounterUnavailableError) Error() string {
	if e == nil || e.Cause == nil {
		return "attempt counter store unavailable"
	}
	return fmt.Sprintf("attempt counter store unavailable: %v", e.Cause)
}

// Unwrap exposes the underlying store error.
func (e *CounterUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// HistoryWriteError marks a failed password-history append. The enclosing
// credential change must roll back; history is never silently skipped.
type HistoryWriteError struct {
	IdentityID string
	Cause      error
}

// Error implements error for HistoryWriteError.
func (e *HistoryWriteError) Error() string {
	if e == nil {
		return "password history write failed"
	}
	return fmt.Sprintf("password history write failed for identity %s: %v", e.IdentityID, e.Cause)
}

// Unwrap exposes the underlying store error.
func (e *HistoryWriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AuditWriteError marks a failed audit insert. Losing an audit record is a
// correctness violation: the documented operation must abort.
type AuditWriteError struct {
	Action AuditAction
	Cause  error
}

// Error implements error for AuditWriteError.
func (e *AuditWriteError) Error() string {
	if e == nil {
		return "audit write failed"
	}
	return fmt.Sprintf("audit write failed for action %s: %v", e.Action, e.Cause)
}

// Unwrap exposes the underlying store error.
func (e *AuditWriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
