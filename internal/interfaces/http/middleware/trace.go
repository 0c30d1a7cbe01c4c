package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/pkg/logger"
)

// Trace otelgin 入口 span
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceContext 把 trace/span id 写入日志上下文，并给 span 补充项目维度
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
		if pid := c.Param("pid"); pid != "" {
			ctx = logger.WithContext(ctx, logger.ProjectIDKey, pid)
			span.SetAttributes(attribute.String("spec.project_id", pid))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)

		c.Next()

		// Auth 在本中间件之后执行，用户维度只能事后补充
		if uid := GetUserIDFromGin(c); uid != "" {
			span.SetAttributes(attribute.String("spec.owner_id", uid))
		}
	}
}
