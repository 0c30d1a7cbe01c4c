package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/interfaces/http/dto"
)

// AdminHandler 管理查询
type AdminHandler struct {
	controller *lifecycle.Controller
	now        func() time.Time
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(controller *lifecycle.Controller) *AdminHandler {
	return &AdminHandler{controller: controller, now: time.Now}
}

// ListStale 列出在指定状态停留超过 older_than 的项目
// @Summary 停滞项目
// @Tags Admin
// @Produce json
// @Param status query string true "项目状态"
// @Param older_than query string false "Go duration，默认 24h"
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/admin/projects/stale [get]
func (h *AdminHandler) ListStale(c *gin.Context) {
	q, err := dto.BindStaleQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.controller.ListStale(c.Request.Context(), q.Status, q.OlderThan, q.Pagination())
	if err != nil {
		writeError(c, err)
		return
	}
	dto.SuccessWithPage(c, dto.ToProjectListResponse(result.Items, h.now()), dto.PageMetaOf(result))
}
