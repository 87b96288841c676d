package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDHeader carries the caller-supplied trace ID. EnrichContext
// echoes it back on every response.
const TraceIDHeader = "X-Trace-ID"

// ginContextKey keys the RequestContext inside the gin context.
const ginContextKey = "request_context"

// requestContextKey keys the RequestContext inside context.Context.
type requestContextKey struct{}

// RequestContext carries the per-request metadata handlers feed into
// use case inputs and audit records.
type RequestContext struct {
	TraceID   string
	RequestID string
	ActorID   string
	IP        string
	UserAgent string
}

// EnrichContext builds the RequestContext for each request, honoring a
// caller-supplied X-Trace-ID and minting one otherwise. The value is
// reachable through the gin context and through the request's
// context.Context, so transport code and use cases share one view.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Header(TraceIDHeader, traceID)

		reqCtx := &RequestContext{
			TraceID:   traceID,
			RequestID: requestIDFromContext(c.Request.Context()),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		c.Set(ginContextKey, reqCtx)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), requestContextKey{}, reqCtx))

		c.Next()
	}
}

// GetRequestContext returns the request metadata, or an empty value when
// EnrichContext is not installed. Callers never need a nil check.
func GetRequestContext(c *gin.Context) *RequestContext {
	if v, ok := c.Get(ginContextKey); ok {
		if reqCtx, ok := v.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// GetTraceID returns the trace ID minted or accepted for this request.
func GetTraceID(c *gin.Context) string {
	return GetRequestContext(c).TraceID
}

// FromContext mirrors GetRequestContext for code that only holds a
// context.Context.
func FromContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
