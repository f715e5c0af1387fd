package middleware

import (
	"context"
	"strconv"
	"time"

	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records request count, latency and error class per
// route.
func MetricsMiddleware(metricsClient *aws_pkg.MetricsClient, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metricsClient.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dimensions := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Route":   route,
			"Status":  statusCodeToRange(statusCode),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTPRequests, dimensions)
			_ = metricsClient.RecordLatency(ctx, aws_pkg.MetricHTTPLatency, duration, dimensions)
			switch {
			case statusCode >= 500:
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTP5xx, dimensions)
			case statusCode >= 400:
				_ = metricsClient.RecordCount(ctx, aws_pkg.MetricHTTP4xx, dimensions)
			}
		}()
	}
}

func statusCodeToRange(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "unknown"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
