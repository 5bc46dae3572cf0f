package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ncobase/jobstream/pkg/ctxutil"
)

// Trace attaches a trace ID to every request, honoring one supplied by the
// caller.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader("X-Trace-Id"); incoming != "" {
			ctx = ctxutil.SetTraceID(ctx, incoming)
		}
		ctx, traceID := ctxutil.EnsureTraceID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-Id", traceID)
		c.Next()
	}
}
