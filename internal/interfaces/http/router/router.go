// Package router 提供 HTTP 路由配置
package router

import (
	"time"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/interfaces/http/handler"
	"spec-forge-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterHandlers 路由依赖的处理器集合
type RouterHandlers struct {
	Health   *handler.HealthHandler
	Project  *handler.ProjectHandler
	Stream   *handler.StreamHandler
	Research *handler.ResearchHandler
	Document *handler.DocumentHandler
	Admin    *handler.AdminHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	auth     middleware.AuthConfig
	limiter  middleware.RateLimiter
	handlers *RouterHandlers
}

// NewWithDeps 创建路由器；limiter 为 nil 时不限流
func NewWithDeps(cfg *config.Config, auth middleware.AuthConfig, limiter middleware.RateLimiter, handlers *RouterHandlers) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		auth:     auth,
		limiter:  limiter,
		handlers: handlers,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// authDevHeader 认证关闭时浏览器需要携带的身份头
func (r *Router) authDevHeader() string {
	if r.auth.Enabled {
		return ""
	}
	return r.auth.DevUserHeader
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(middleware.DefaultSkipPaths...))
	}

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
		DevUserHeader:  r.authDevHeader(),
	}))

	r.engine.Use(middleware.Audit())
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	rl := r.cfg.Security.RateLimit
	general := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:   rl.Enabled,
		Limit:     rl.RequestsPerSecond + rl.Burst,
		Window:    time.Second,
		KeyPrefix: "ratelimit:api",
	}, r.limiter)
	ai := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:   rl.Enabled && rl.AIRequestsPerMinute > 0,
		Limit:     rl.AIRequestsPerMinute,
		Window:    time.Minute,
		KeyPrefix: "ratelimit:ai",
	}, r.limiter)

	// API v1 路由组
	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Auth(r.auth), general)
	RegisterV1Routes(v1, h, ai)
}
