package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/domain/entity"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// Permission 路由级权限；项目归属由控制器按 owner 校验
type Permission string

const (
	PermProjectRead  Permission = "project:read"
	PermProjectWrite Permission = "project:write"
	// PermSpecGenerate 触发调研与文档生成等消耗模型配额的操作
	PermSpecGenerate Permission = "spec:generate"
	// PermAdminAccess 滞留项目巡检等运维接口
	PermAdminAccess Permission = "admin:access"
)

var rolePermissions = map[entity.UserRole][]Permission{
	entity.UserRoleAdmin:  {PermProjectRead, PermProjectWrite, PermSpecGenerate, PermAdminAccess},
	entity.UserRoleMember: {PermProjectRead, PermProjectWrite, PermSpecGenerate},
}

func HasPermission(role entity.UserRole, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// RequirePermission 角色缺少权限时返回 403
func RequirePermission(perm Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRoleFromGin(c)
		if role == "" {
			abortWithCode(c, http.StatusForbidden, apperrors.CodePermissionDenied, "missing role in context")
			return
		}
		if !HasPermission(role, perm) {
			logger.Warn(c.Request.Context(), "permission denied",
				"role", string(role),
				"permission", string(perm),
				"route", c.FullPath(),
			)
			abortWithCode(c, http.StatusForbidden, apperrors.CodePermissionDenied, "permission denied")
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequirePermission(PermAdminAccess)
}

// abortWithCode 与 handler 的错误响应保持同一结构
func abortWithCode(c *gin.Context, status int, code apperrors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":     status,
		"message":  msg,
		"error":    gin.H{"error_code": string(code)},
		"trace_id": c.GetString("trace_id"),
	})
}
