package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"spec-forge-api/pkg/logger"
)

// HealthChecker 依赖的健康检查，postgres 与 redis 客户端都实现它
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DependencyCheck 具名依赖；Required 为 false 时失败只降级不影响就绪
type DependencyCheck struct {
	Name     string
	Checker  HealthChecker
	Required bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	checks  []DependencyCheck
}

// NewHealthHandler 创建健康检查处理器；Checker 为 nil 的依赖视为未启用
func NewHealthHandler(version string, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{
		version: version,
		checks:  checks,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type dependencyStatus struct {
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status       string                       `json:"status"`
	Version      string                       `json:"version,omitempty"`
	Dependencies map[string]*dependencyStatus `json:"dependencies"`
}

const readinessTimeout = 2 * time.Second

// Health 进程存活即返回 ok
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Live 供探针使用，不检查依赖
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready 并发检查全部依赖；必需依赖失败返回 503
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	results := make([]*dependencyStatus, len(h.checks))
	var g errgroup.Group
	for i, dep := range h.checks {
		g.Go(func() error {
			results[i] = probe(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{
		Status:       "ok",
		Version:      h.version,
		Dependencies: make(map[string]*dependencyStatus, len(h.checks)),
	}
	code := http.StatusOK
	for i, dep := range h.checks {
		st := results[i]
		resp.Dependencies[dep.Name] = st
		if st.Status == "error" {
			resp.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

func probe(ctx context.Context, dep DependencyCheck) *dependencyStatus {
	st := &dependencyStatus{Status: "ok", Required: dep.Required}
	if dep.Checker == nil {
		st.Status = "disabled"
		return st
	}
	start := time.Now()
	err := dep.Checker.HealthCheck(ctx)
	st.LatencyMs = time.Since(start).Milliseconds()
	if err == nil {
		return st
	}
	st.Error = err.Error()
	st.Status = "degraded"
	if dep.Required {
		st.Status = "error"
		logger.FromContext(ctx).Warn("readiness dependency failed", "dependency", dep.Name, "error", err)
	}
	return st
}
