package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// LoginHandler exposes the failed-login governor endpoints.
type LoginHandler struct {
	logins *usecase.LoginService
}

func NewLoginHandler(logins *usecase.LoginService) *LoginHandler {
	return &LoginHandler{logins: logins}
}

// Check godoc
// @Summary Consult the lockout governor before authentication
// @Description Reports whether the attempt key may authenticate. A locked key answers 423 with a Retry-After header; the response never indicates whether any credentials were valid.
// @Tags Login
// @Accept json
// @Produce json
// @Param request body LoginCheckRequest true "Login check request"
// @Success 200 {object} LoginCheckResponse
// @Failure 400 {object} ErrorResponse
// @Failure 423 {object} LoginCheckResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/login/check [post]
func (h *LoginHandler) Check(c *gin.Context) {
	if h.logins == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login service not configured"))
		return
	}

	var req LoginCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login check payload"))
		return
	}

	input := usecase.LoginCheckInput{
		Source:   h.sourceOrClientIP(c, req.Source),
		Username: req.Username,
	}

	state, err := h.logins.CheckLogin(c.Request.Context(), input)
	if err != nil {
		var lockErr *domain.LockoutError
		if errors.As(err, &lockErr) {
			setRetryAfterHeader(c, retryAfterSeconds(lockErr.RetryAfter))
			c.JSON(http.StatusLocked, LoginCheckResponse{
				Allowed: false,
				State:   newAttemptStatePayload(state),
			})
			return
		}

		var counterErr *domain.CounterUnavailableError
		if errors.As(err, &counterErr) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login check unavailable"))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAttemptKeyIncomplete, Status: http.StatusBadRequest, Message: "source or username is required"},
		}, http.StatusInternalServerError, "failed to check login")
		return
	}

	c.JSON(http.StatusOK, LoginCheckResponse{
		Allowed: true,
		State:   newAttemptStatePayload(state),
	})
}

// Outcome godoc
// @Summary Record the outcome of an authentication attempt
// @Description Updates the lockout counters and appends the outcome audit record. A failure that crosses the threshold answers 423 with the locked state.
// @Tags Login
// @Accept json
// @Produce json
// @Param request body LoginOutcomeRequest true "Login outcome request"
// @Success 200 {object} LoginOutcomeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 423 {object} LoginOutcomeResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/login/outcome [post]
func (h *LoginHandler) Outcome(c *gin.Context) {
	if h.logins == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login service not configured"))
		return
	}

	var req LoginOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login outcome payload"))
		return
	}

	reqCtx := middleware.GetRequestContext(c)

	input := usecase.LoginOutcomeInput{
		Source:     h.sourceOrClientIP(c, req.Source),
		Username:   req.Username,
		Success:    *req.Success,
		IdentityID: strings.TrimSpace(req.IdentityID),
		ActorID:    reqCtx.ActorID,
		IP:         reqCtx.IP,
		RequestID:  reqCtx.RequestID,
	}

	state, err := h.logins.RecordLoginOutcome(c.Request.Context(), input)
	if err != nil {
		var counterErr *domain.CounterUnavailableError
		if errors.As(err, &counterErr) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "login outcome unavailable"))
			return
		}

		var auditErr *domain.AuditWriteError
		if errors.As(err, &auditErr) {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record login outcome"))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAttemptKeyIncomplete, Status: http.StatusBadRequest, Message: "source or username is required"},
		}, http.StatusInternalServerError, "failed to record login outcome")
		return
	}

	status := http.StatusOK
	if state != nil && state.Locked() {
		status = http.StatusLocked
		setRetryAfterHeader(c, retryAfterSeconds(state.RetryAfter))
	}

	c.JSON(status, LoginOutcomeResponse{State: newAttemptStatePayload(state)})
}

// sourceOrClientIP falls back to the connection address when the caller does
// not name the attempt source explicitly.
func (h *LoginHandler) sourceOrClientIP(c *gin.Context, source string) string {
	if trimmed := strings.TrimSpace(source); trimmed != "" {
		return trimmed
	}
	return c.ClientIP()
}

func setRetryAfterHeader(c *gin.Context, seconds int) {
	if seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
}
