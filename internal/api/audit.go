package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
)

// deniedStatuses are the rejections recorded by accessAuditMiddleware.
var deniedStatuses = map[int]string{
	http.StatusUnauthorized:          "invalid or missing API key",
	http.StatusRequestEntityTooLarge: "request body too large",
	http.StatusTooManyRequests:       "rate limit exceeded",
}

// accessAuditMiddleware records requests that were turned away by the API
// key, body limit or rate limit middleware. Tool calls that reach the
// dispatcher are audited there.
func accessAuditMiddleware(auditStore logging.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		reason, denied := deniedStatuses[status]
		if !denied {
			return
		}

		path := c.Request.URL.Path
		event := logging.NewAuditEvent(logging.AccessDenied, c.Request.Method+" "+path, logging.StatusFailure).
			WithIPAddress(c.ClientIP()).
			WithResource(path).
			WithActor("http").
			WithContext(c.Request.Context()).
			WithSeverity(logging.SeverityWarning).
			WithDetails(map[string]interface{}{
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"user_agent": c.Request.UserAgent(),
			})
		event.ErrorMessage = reason

		auditStore.SaveEventAsync(event)
	}
}
