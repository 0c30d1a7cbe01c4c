package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/interfaces/http/dto"
	"spec-forge-api/pkg/logger"
)

// ProjectHandler 项目处理器
type ProjectHandler struct {
	controller *lifecycle.Controller
	now        func() time.Time
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(controller *lifecycle.Controller) *ProjectHandler {
	return &ProjectHandler{
		controller: controller,
		now:        time.Now,
	}
}

// CreateProject 创建项目
// @Summary 创建项目
// @Description 创建项目，描述作为第一轮用户发言
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body dto.CreateProjectRequest true "项目信息"
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	project, err := h.controller.CreateProject(ctx, ownerID(c), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info(ctx, "project created", "project_id", project.ID)
	dto.Created(c, dto.ToProjectResponse(project, h.now()))
}

// ListProjects 获取项目列表
// @Summary 获取项目列表
// @Tags Projects
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Router /v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	pageReq := dto.BindPage(c)

	result, err := h.controller.ListProjects(c.Request.Context(), ownerID(c), pageReq.Pagination())
	if err != nil {
		writeError(c, err)
		return
	}

	dto.SuccessWithPage(c, dto.ToProjectListResponse(result.Items, h.now()), dto.PageMetaOf(result))
}

// GetProject 获取项目详情，附带在当前状态停留的时长
// @Summary 获取项目详情
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, err := h.controller.GetProject(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project, h.now()))
}

// ListTurns 获取对话记录
// @Summary 获取对话记录
// @Tags Conversation
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.TurnListResponse]
// @Router /v1/projects/{pid}/turns [get]
func (h *ProjectHandler) ListTurns(c *gin.Context) {
	turns, err := h.controller.ListTurns(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToTurnListResponse(turns))
}

// Approve 评审通过
// @Summary 评审通过
// @Tags Review
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/approve [post]
func (h *ProjectHandler) Approve(c *gin.Context) {
	project, err := h.controller.Approve(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project, h.now()))
}

// RequestChanges 评审退回，反馈写入对话后项目回到 generating
// @Summary 评审退回
// @Tags Review
// @Accept json
// @Produce json
// @Param pid path string true "项目 ID"
// @Param body body dto.RequestChangesRequest true "修改意见"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/request-changes [post]
func (h *ProjectHandler) RequestChanges(c *gin.Context) {
	var req dto.RequestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	project, err := h.controller.RequestChanges(c.Request.Context(), dto.BindProjectID(c), ownerID(c), req.Feedback)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project, h.now()))
}

// Archive 归档项目
// @Summary 归档项目
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Router /v1/projects/{pid}/archive [post]
func (h *ProjectHandler) Archive(c *gin.Context) {
	project, err := h.controller.Archive(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(project, h.now()))
}

// CreateVersion 基于已完成项目创建新版本
// @Summary 创建新版本
// @Tags Projects
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/versions [post]
func (h *ProjectHandler) CreateVersion(c *gin.Context) {
	project, err := h.controller.CreateVersion(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Created(c, dto.ToProjectResponse(project, h.now()))
}
