package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classgate/classgate-api/internal/service"
)

// Metrics records per-route request counts and latencies. Requests that miss
// the router are grouped under a single label to bound series cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
