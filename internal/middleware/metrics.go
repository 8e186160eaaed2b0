package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kosen-dev/timetable-api/internal/service"
)

// Metrics records one HTTP observation per request. It labels by route
// template (c.FullPath) rather than the raw URL so /schedules/:id stays a
// single series instead of one per slot.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// Unmatched routes (404s) have no template.
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
