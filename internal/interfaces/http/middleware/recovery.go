package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// Recovery 捕获 panic。SSE 已开始输出时无法再改写状态码，改为推送 error 事件后结束流
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"project_id", c.Param("pid"),
				"user_id", GetUserIDFromGin(c),
			)

			if c.Writer.Written() && isEventStream(c) {
				c.SSEvent("error", gin.H{
					"code":    errors.CodeInternalError,
					"message": "internal server error",
				})
				c.Writer.Flush()
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":     errors.CodeInternalError,
				"message":  "internal server error",
				"trace_id": c.GetString("trace_id"),
			})
		}()

		c.Next()
	}
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}
