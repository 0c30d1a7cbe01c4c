package middleware

import (
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"spec-forge-api/pkg/metrics"
)

// Metrics HTTP 指标。探针与 /metrics 自身不计入；SSE 响应只记录次数与时长，体积无意义
func Metrics(skipPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if slices.Contains(skipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method
		start := time.Now()

		if c.Request.ContentLength > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 && !isEventStream(c) {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
