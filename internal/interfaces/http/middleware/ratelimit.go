package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// RateLimitConfig Limit 为 Window 内允许的请求数
type RateLimitConfig struct {
	Enabled   bool
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// RateLimiter 由 redis.RateLimiter 实现
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (cfg RateLimitConfig) withDefaults() RateLimitConfig {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit"
	}
	return cfg
}

// limitKey prefix:subject:route，未认证请求按客户端 IP 计数
func limitKey(c *gin.Context, prefix string) string {
	subject := GetUserIDFromGin(c)
	if subject == "" {
		subject = "anonymous:" + c.ClientIP()
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return strings.Join([]string{prefix, subject, route}, ":")
}

// RateLimit 按用户与路由模板计数；限流器出错时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	cfg = cfg.withDefaults()
	limit := strconv.Itoa(cfg.Limit)
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.Window.Seconds())))

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Header("X-RateLimit-Limit", limit)

		allowed, err := limiter.Allow(ctx, limitKey(c, cfg.KeyPrefix), cfg.Limit, cfg.Window)
		switch {
		case err != nil:
			metrics.RateLimitDecisions.WithLabelValues(cfg.KeyPrefix, "error").Inc()
			logger.Warn(ctx, "rate limiter unavailable", "error", err.Error(), "scope", cfg.KeyPrefix)
		case !allowed:
			metrics.RateLimitDecisions.WithLabelValues(cfg.KeyPrefix, "rejected").Inc()
			c.Header("Retry-After", retryAfter)
			abortWithCode(c, http.StatusTooManyRequests, apperrors.CodeTooManyRequests, "rate limit exceeded")
			return
		default:
			metrics.RateLimitDecisions.WithLabelValues(cfg.KeyPrefix, "allowed").Inc()
		}
		c.Next()
	}
}
