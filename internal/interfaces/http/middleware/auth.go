// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"spec-forge-api/internal/domain/entity"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径
	SkipPaths []string
	// Enabled 是否启用认证
	Enabled bool
	// DevUserHeader 关闭认证时从该请求头读取用户 ID（仅开发环境）
	DevUserHeader string
}

// DevRoleHeader 关闭认证时从该请求头读取角色
const DevRoleHeader = "X-User-Role"

// Auth 认证中间件
func Auth(cfg AuthConfig) gin.HandlerFunc {
	// 初始化 JWT 管理器
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		// 检查路径前缀匹配（支持 /health, /ready, /live, /metrics）
		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		// 未启用认证时使用开发请求头
		if !cfg.Enabled {
			userID := strings.TrimSpace(c.GetHeader(cfg.DevUserHeader))
			if cfg.DevUserHeader == "" || userID == "" {
				abortUnauthorized(c, apperrors.CodeTokenMissing, "missing "+cfg.DevUserHeader+" header")
				return
			}
			role := c.GetHeader(DevRoleHeader)
			if role == "" {
				role = string(entity.UserRoleMember)
			}
			setIdentity(c, userID, role)
			c.Next()
			return
		}

		// 获取 Authorization Header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.CodeTokenMissing, "missing authorization header")
			return
		}

		// 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseAccessToken(parts[1])
		switch {
		case errors.Is(err, utils.ErrExpiredToken):
			abortUnauthorized(c, apperrors.CodeTokenExpired, "token expired")
			return
		case errors.Is(err, utils.ErrWrongTokenType):
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid token type")
			return
		case err != nil:
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid token")
			return
		}

		setIdentity(c, claims.UserID, claims.Role)
		c.Next()
	}
}

// setIdentity 注入用户信息到 Gin Context 与日志上下文
func setIdentity(c *gin.Context, userID, role string) {
	c.Set("user_id", userID)
	c.Set("role", role)
	ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
	c.Request = c.Request.WithContext(ctx)
}

// GetUserIDFromGin 从 Gin Context 中获取用户 ID
func GetUserIDFromGin(c *gin.Context) string {
	return c.GetString("user_id")
}

// GetRoleFromGin 从 Gin Context 中获取角色
func GetRoleFromGin(c *gin.Context) entity.UserRole {
	return entity.UserRole(c.GetString("role"))
}

func abortUnauthorized(c *gin.Context, code apperrors.ErrorCode, msg string) {
	abortWithCode(c, http.StatusUnauthorized, code, msg)
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
