package router

import (
	"spec-forge-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由；ai 用于会触发模型调用的接口
func RegisterV1Routes(v1 *gin.RouterGroup, h *RouterHandlers, ai gin.HandlerFunc) {
	read := middleware.RequirePermission(middleware.PermProjectRead)
	write := middleware.RequirePermission(middleware.PermProjectWrite)
	generate := middleware.RequirePermission(middleware.PermSpecGenerate)

	// 项目管理
	projects := v1.Group("/projects")
	{
		projects.GET("", read, h.Project.ListProjects)
		projects.POST("", write, h.Project.CreateProject)
		projects.GET("/:pid", read, h.Project.GetProject)
		projects.GET("/:pid/turns", read, h.Project.ListTurns)

		// 对话（SSE）
		projects.POST("/:pid/chat", write, ai, h.Stream.Chat)

		// 调研
		projects.GET("/:pid/research", read, h.Research.GetResearch)
		projects.GET("/:pid/research/progress", read, h.Research.Progress)
		projects.POST("/:pid/research/next", write, ai, h.Stream.RunResearch) // SSE
		projects.POST("/:pid/research/skip", write, h.Research.SkipPhase)
		projects.POST("/:pid/research/restart", write, h.Research.Restart)

		// 规格文档
		projects.POST("/:pid/generate", generate, ai, h.Document.Generate)
		projects.GET("/:pid/document", read, h.Document.GetDocument)
		projects.POST("/:pid/download", read, ai, h.Document.Download)

		// 评审与版本
		projects.POST("/:pid/approve", write, h.Project.Approve)
		projects.POST("/:pid/request-changes", write, h.Project.RequestChanges)
		projects.POST("/:pid/archive", write, h.Project.Archive)
		projects.POST("/:pid/versions", write, h.Project.CreateVersion)
	}

	// 管理查询
	admin := v1.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/projects/stale", h.Admin.ListStale)
	}
}
