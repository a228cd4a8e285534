package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDHeader carries the correlation ID in and out of the service.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key holding the correlation ID.
	TraceIDKey = "trace_id"
	// UserIDKey is the gin context key holding the authenticated account ID.
	UserIDKey = "user_id"

	maxTraceIDBytes = 128
)

// EnrichContext assigns every request a correlation ID and echoes it in X-Trace-ID. The active
// span's trace ID wins, then a caller-supplied header; otherwise a UUID is minted. Error bodies
// carry the same ID so a client report can be matched to logs and traces.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := correlationID(c)
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

func correlationID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if inbound := c.GetHeader(TraceIDHeader); inbound != "" && len(inbound) <= maxTraceIDBytes {
		return inbound
	}
	return uuid.NewString()
}

// GetTraceID returns the correlation ID, or "" outside EnrichContext.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
