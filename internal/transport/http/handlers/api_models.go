package handlers

import (
	"math"
	"time"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// PasswordContextPayload carries inline identity attributes for evaluating a
// candidate without a stored identity.
type PasswordContextPayload struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	DisplayName string  `json:"display_name"`
}

// PasswordEvaluateRequest defines the payload for the evaluation endpoint.
// IdentityID selects a stored identity; Context supplies attributes inline.
type PasswordEvaluateRequest struct {
	IdentityID string                  `json:"identity_id"`
	Candidate  string                  `json:"candidate" binding:"required"`
	Context    *PasswordContextPayload `json:"context,omitempty"`
}

// PolicyViolationPayload describes a single failed policy rule.
type PolicyViolationPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PasswordEvaluateResponse reports the verdict for a candidate password.
type PasswordEvaluateResponse struct {
	Accepted    bool                     `json:"accepted"`
	EntropyBits float64                  `json:"entropy_bits"`
	Reasons     []PolicyViolationPayload `json:"reasons,omitempty"`
}

// CredentialChangeRequest defines the payload for committing a credential
// change. ActorID attributes the change when the caller acts for another
// principal; an authenticated actor from the request context wins otherwise.
type CredentialChangeRequest struct {
	NewPassword string `json:"new_password" binding:"required"`
	Initial     bool   `json:"initial"`
	ActorID     string `json:"actor_id"`
}

// PasswordRejectedResponse carries the reasons a credential change was refused.
type PasswordRejectedResponse struct {
	Error   string                   `json:"error"`
	Reasons []PolicyViolationPayload `json:"reasons"`
	TraceID string                   `json:"trace_id,omitempty"`
}

// LoginCheckRequest identifies the attempt key to consult.
type LoginCheckRequest struct {
	Source   string `json:"source"`
	Username string `json:"username"`
}

// LoginOutcomeRequest reports the result of an authentication attempt.
type LoginOutcomeRequest struct {
	Source     string `json:"source"`
	Username   string `json:"username"`
	Success    *bool  `json:"success" binding:"required"`
	IdentityID string `json:"identity_id"`
}

// AttemptStatePayload is the API view of one lockout counter.
type AttemptStatePayload struct {
	Key               string     `json:"key"`
	Phase             string     `json:"phase"`
	Count             int64      `json:"count"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

// LoginCheckResponse reports whether the key may attempt authentication.
type LoginCheckResponse struct {
	Allowed bool                `json:"allowed"`
	State   AttemptStatePayload `json:"state"`
}

// LoginOutcomeResponse returns the counter state after recording an outcome.
type LoginOutcomeResponse struct {
	State AttemptStatePayload `json:"state"`
}

// AuditRecordPayload is the API view of a single audit record.
type AuditRecordPayload struct {
	ID            string               `json:"id"`
	OccurredAt    time.Time            `json:"occurred_at"`
	ActorID       *string              `json:"actor_id,omitempty"`
	Action        domain.AuditAction   `json:"action"`
	TargetType    string               `json:"target_type"`
	TargetID      string               `json:"target_id"`
	ChangedFields []domain.FieldChange `json:"changed_fields,omitempty"`
	SourceIP      string               `json:"source_ip,omitempty"`
	RequestID     string               `json:"request_id,omitempty"`
}

// AuditQueryResponse wraps one page of audit records.
type AuditQueryResponse struct {
	Records []AuditRecordPayload `json:"records"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// AuditPurgeRequest defines the payload for the retention purge endpoint. An
// absent cutoff purges up to the configured retention horizon.
type AuditPurgeRequest struct {
	Cutoff *time.Time `json:"cutoff"`
}

// AuditPurgeResponse reports how many records the purge removed.
type AuditPurgeResponse struct {
	Removed int64 `json:"removed"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newPolicyViolations converts domain violations to API payloads.
func newPolicyViolations(reasons []domain.PolicyViolation) []PolicyViolationPayload {
	if len(reasons) == 0 {
		return nil
	}

	payload := make([]PolicyViolationPayload, 0, len(reasons))
	for _, reason := range reasons {
		payload = append(payload, PolicyViolationPayload{
			Code:    reason.Code,
			Message: reason.Message,
		})
	}

	return payload
}

// newAttemptStatePayload converts a counter state to an API payload.
func newAttemptStatePayload(state *domain.AttemptState) AttemptStatePayload {
	if state == nil {
		return AttemptStatePayload{}
	}

	payload := AttemptStatePayload{
		Key:               state.Key.String(),
		Phase:             string(state.Phase),
		Count:             state.Count,
		RetryAfterSeconds: retryAfterSeconds(state.RetryAfter),
	}

	if state.LockedUntil != nil {
		lockedUntil := state.LockedUntil.UTC()
		payload.LockedUntil = &lockedUntil
	}

	return payload
}

func retryAfterSeconds(retryAfter time.Duration) int {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return seconds
}

// newAuditRecordPayload converts a domain audit record to an API payload.
func newAuditRecordPayload(record domain.AuditRecord) AuditRecordPayload {
	payload := AuditRecordPayload{
		ID:         record.ID,
		OccurredAt: record.OccurredAt,
		Action:     record.Action,
		TargetType: record.TargetType,
		TargetID:   record.TargetID,
		SourceIP:   record.SourceIP,
		RequestID:  record.RequestID,
	}

	if record.ActorID != nil {
		payload.ActorID = record.ActorID
	}

	if len(record.ChangedFields) > 0 {
		fields := make([]domain.FieldChange, len(record.ChangedFields))
		copy(fields, record.ChangedFields)
		payload.ChangedFields = fields
	}

	return payload
}

// newAuditQueryResponse converts an audit page to the API response shape.
func newAuditQueryResponse(page *domain.AuditPage) AuditQueryResponse {
	response := AuditQueryResponse{
		Records: make([]AuditRecordPayload, 0, len(page.Records)),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}

	for _, record := range page.Records {
		response.Records = append(response.Records, newAuditRecordPayload(record))
	}

	return response
}
