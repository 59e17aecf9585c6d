package metrics

import (
	"strconv"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/gin-gonic/gin"
)

// unmatchedEndpoint labels requests that hit no route, keeping label
// cardinality bounded.
const unmatchedEndpoint = "unmatched"

// Middleware records HTTP metrics for each request. Scrapes of the metrics
// endpoint itself are not counted.
func Middleware(m *Metrics, logger *logging.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		m.IncHTTPRequestsInFlight()
		defer m.DecHTTPRequestsInFlight()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedEndpoint
		}

		m.RecordRequestLatency(endpoint, c.Request.Method, status, time.Since(start).Seconds())
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if len(c.Errors) > 0 {
			logger.ErrorWithContext(c.Request.Context(), "request error",
				"endpoint", endpoint,
				"error", c.Errors.String(),
			)
		}
	}
}
