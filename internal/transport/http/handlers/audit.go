package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
	"github.com/arklim/social-platform-authguard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// AuditHandler exposes the administrative audit trail endpoints.
type AuditHandler struct {
	audit *usecase.AuditService
}

func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Query godoc
// @Summary Query audit records
// @Description Returns a page of audit records matching the filter, newest first.
// @Tags Audit
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param actor_id query string false "Filter by actor ID"
// @Param action query string false "Filter by action"
// @Param target_type query string false "Filter by target type"
// @Param target_id query string false "Filter by target ID"
// @Param from query string false "Lower bound, RFC 3339"
// @Param to query string false "Upper bound, RFC 3339"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} AuditQueryResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) Query(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service not configured"))
		return
	}

	filter, err := parseAuditFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	page, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAuditServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "audit service unavailable"},
		}, http.StatusInternalServerError, "failed to query audit records")
		return
	}

	if page == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "audit page unavailable"))
		return
	}

	c.JSON(http.StatusOK, newAuditQueryResponse(page))
}

// Export godoc
// @Summary Export audit records as CSV
// @Description Streams matching audit records oldest-first as CSV. The export itself is recorded in the audit trail before the first row is written.
// @Tags Audit
// @Produce text/csv
// @Param Authorization header string true "Bearer access token"
// @Param actor_id query string false "Filter by actor ID"
// @Param action query string false "Filter by action"
// @Param target_type query string false "Filter by target type"
// @Param target_id query string false "Filter by target ID"
// @Param from query string false "Lower bound, RFC 3339"
// @Param to query string false "Upper bound, RFC 3339"
// @Success 200 {string} string "CSV stream"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service not configured"))
		return
	}

	filter, err := parseAuditFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	reqCtx := middleware.GetRequestContext(c)

	input := usecase.ExportInput{
		Filter:    filter,
		ActorID:   reqCtx.ActorID,
		IP:        reqCtx.IP,
		RequestID: reqCtx.RequestID,
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="audit_export.csv"`)

	if _, err := h.audit.ExportCSV(c.Request.Context(), input, c.Writer); err != nil {
		if c.Writer.Written() {
			// Rows already streamed; the failure only reaches the request log.
			_ = c.Error(err)
			return
		}

		c.Writer.Header().Del("Content-Disposition")
		c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAuditServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "audit service unavailable"},
		}, http.StatusInternalServerError, "failed to export audit records")
		return
	}
}

// Purge godoc
// @Summary Purge audit records past retention
// @Description Removes audit records older than the cutoff and records the purge itself. Without a cutoff the configured retention horizon applies.
// @Tags Audit
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body AuditPurgeRequest true "Purge request"
// @Success 200 {object} AuditPurgeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit/purge [post]
func (h *AuditHandler) Purge(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service not configured"))
		return
	}

	var req AuditPurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid purge payload"))
		return
	}

	reqCtx := middleware.GetRequestContext(c)

	input := usecase.PurgeInput{
		ActorID:   reqCtx.ActorID,
		IP:        reqCtx.IP,
		RequestID: reqCtx.RequestID,
	}
	if req.Cutoff != nil {
		input.Cutoff = *req.Cutoff
	}

	removed, err := h.audit.PurgeBefore(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrCutoffRequired, Status: http.StatusBadRequest, Message: "cutoff is required"},
			{Err: usecase.ErrAuditServiceUnavailable, Status: http.StatusServiceUnavailable, Message: "audit service unavailable"},
		}, http.StatusInternalServerError, "failed to purge audit records")
		return
	}

	c.JSON(http.StatusOK, AuditPurgeResponse{Removed: removed})
}

// parseAuditFilter reads the shared audit filter query parameters.
func parseAuditFilter(c *gin.Context) (domain.AuditFilter, error) {
	filter := domain.AuditFilter{
		ActorID:    strings.TrimSpace(c.Query("actor_id")),
		Action:     domain.AuditAction(strings.TrimSpace(c.Query("action"))),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
	}

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from timestamp")
		}
		filter.From = from
	}

	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid to timestamp")
		}
		filter.To = to
	}

	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return filter, fmt.Errorf("to precedes from")
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = limit
	}

	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}
