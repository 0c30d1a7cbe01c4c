package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/interfaces/http/dto"
)

// DocumentHandler 规格文档处理器
type DocumentHandler struct {
	controller *lifecycle.Controller
}

// NewDocumentHandler 创建规格文档处理器
func NewDocumentHandler(controller *lifecycle.Controller) *DocumentHandler {
	return &DocumentHandler{controller: controller}
}

// Generate 生成并校验规格文档
// @Summary 生成规格文档
// @Description 同步返回校验结果；质量未达标时返回 422 与问题列表。async=true 时投递任务并返回 202
// @Tags Documents
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param async query bool false "异步生成"
// @Param body body dto.GenerateRequest false "需要集成的外部服务"
// @Success 200 {object} dto.Response[dto.GenerateResponse]
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/generate [post]
func (h *DocumentHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	if dto.IsAsync(c) {
		jobID, err := h.controller.EnqueueGenerate(ctx, projectID, ownerID(c), req.Integrations)
		if err != nil {
			writeError(c, err)
			return
		}
		dto.Accepted(c, &dto.JobResponse{
			JobID:     jobID,
			ProjectID: projectID,
			Status:    "queued",
		})
		return
	}

	result, err := h.controller.Generate(ctx, projectID, ownerID(c), req.Integrations)
	if err != nil {
		// 未达标时 writeError 返回 422 与最终分数、问题列表
		writeError(c, err)
		return
	}

	project, err := h.controller.GetProject(ctx, projectID, ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, &dto.GenerateResponse{
		Document:      dto.ToDocumentResponse(result.Document),
		Passed:        true,
		ProjectStatus: string(project.Status),
	})
}

// GetDocument 获取规格文档
// @Summary 获取规格文档
// @Tags Documents
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.DocumentResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/document [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.controller.GetDocument(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToDocumentResponse(doc))
}

// Download 下载打包后的文档，并记录下载事件
// @Summary 下载规格文档
// @Tags Documents
// @Produce text/markdown
// @Param pid path string true "项目 ID"
// @Success 200 {file} file
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/download [post]
func (h *DocumentHandler) Download(c *gin.Context) {
	pkg, err := h.controller.Download(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pkg.Name))
	c.Data(http.StatusOK, pkg.ContentType, pkg.Content)
}
