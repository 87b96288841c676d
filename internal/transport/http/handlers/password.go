package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// PasswordHandler exposes password evaluation and credential change endpoints.
type PasswordHandler struct {
	passwords *usecase.PasswordService
}

func NewPasswordHandler(passwords *usecase.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// Evaluate godoc
// @Summary Evaluate a candidate password
// @Description Scores a candidate against the password policy for a stored identity or an inline context and returns the verdict with violation reasons.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordEvaluateRequest true "Password evaluation request"
// @Success 200 {object} PasswordEvaluateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/evaluate [post]
func (h *PasswordHandler) Evaluate(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service not configured"))
		return
	}

	var req PasswordEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password evaluation payload"))
		return
	}

	if strings.TrimSpace(req.Candidate) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "candidate password is required"))
		return
	}

	input := usecase.PasswordEvaluationInput{
		IdentityID: strings.TrimSpace(req.IdentityID),
		Candidate:  req.Candidate,
	}
	if req.Context != nil {
		input.Context = domain.PasswordContext{
			Username:    req.Context.Username,
			Email:       req.Context.Email,
			Phone:       req.Context.Phone,
			DisplayName: req.Context.DisplayName,
		}
	}

	verdict, err := h.passwords.EvaluatePassword(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: usecase.ErrPasswordServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "password service unavailable"},
		}, http.StatusInternalServerError, "failed to evaluate password")
		return
	}

	if verdict == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "password verdict unavailable"))
		return
	}

	c.JSON(http.StatusOK, PasswordEvaluateResponse{
		Accepted:    verdict.Accepted,
		EntropyBits: verdict.EntropyBits,
		Reasons:     newPolicyViolations(verdict.Reasons),
	})
}

// ChangeCredential godoc
// @Summary Commit a credential change for an identity
// @Description Validates the new password against the policy and history, then commits the hash, the history append, and the audit record in one transaction.
// @Tags Password
// @Accept json
// @Produce json
// @Param id path string true "Identity ID"
// @Param request body CredentialChangeRequest true "Credential change request"
// @Success 204 "credential updated"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} PasswordRejectedResponse
// @Failure 422 {object} PasswordRejectedResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/identities/{id}/credential [put]
func (h *PasswordHandler) ChangeCredential(c *gin.Context) {
	if h.passwords == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password service not configured"))
		return
	}

	identityID := strings.TrimSpace(c.Param("id"))
	if identityID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identity id is required"))
		return
	}

	var req CredentialChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid credential change payload"))
		return
	}

	if strings.TrimSpace(req.NewPassword) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "new password is required"))
		return
	}

	reqCtx := middleware.GetRequestContext(c)

	actorID := reqCtx.ActorID
	if actorID == "" {
		actorID = strings.TrimSpace(req.ActorID)
	}

	input := usecase.CredentialChangeInput{
		IdentityID:  identityID,
		NewPassword: req.NewPassword,
		ActorID:     actorID,
		Initial:     req.Initial,
		IP:          reqCtx.IP,
		RequestID:   reqCtx.RequestID,
	}

	if _, err := h.passwords.ChangeCredential(c.Request.Context(), input); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			status := http.StatusUnprocessableEntity
			message := "password rejected by policy"
			if validationErr.Has(domain.ReasonPasswordReused) {
				status = http.StatusConflict
				message = "password was used recently"
			}
			c.JSON(status, PasswordRejectedResponse{
				Error:   message,
				Reasons: newPolicyViolations(validationErr.Reasons),
				TraceID: middleware.GetTraceID(c),
			})
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: usecase.ErrPasswordServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "password service unavailable"},
		}, http.StatusInternalServerError, "failed to change credential")
		return
	}

	c.Status(http.StatusNoContent)
}
