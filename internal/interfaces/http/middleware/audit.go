package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"spec-forge-api/pkg/logger"
)

// Audit 访问日志；5xx 记为 error，4xx 记为 warn，SSE 请求的耗时即流的持续时间
func Audit() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"user_id", GetUserIDFromGin(c),
			"body_size", c.Writer.Size(),
		}
		if pid := c.Param("pid"); pid != "" {
			attrs = append(attrs, "project_id", pid)
		}
		if isEventStream(c) {
			attrs = append(attrs, "stream", true)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		logger.FromContext(c.Request.Context()).Log(c.Request.Context(), auditLevel(status), "api request", attrs...)
	}
}

func auditLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
