package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/application/research"
	"spec-forge-api/internal/interfaces/http/dto"
	apperrors "spec-forge-api/pkg/errors"
)

// ResearchHandler 调研处理器
type ResearchHandler struct {
	controller *lifecycle.Controller
	progress   ProgressStore
}

// NewResearchHandler 创建调研处理器
func NewResearchHandler(controller *lifecycle.Controller, progress ProgressStore) *ResearchHandler {
	return &ResearchHandler{
		controller: controller,
		progress:   progress,
	}
}

// GetResearch 获取调研产物
// @Summary 获取调研产物
// @Tags Research
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ResearchResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/research [get]
func (h *ResearchHandler) GetResearch(c *gin.Context) {
	artifact, err := h.controller.GetResearch(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, dto.ToResearchResponse(artifact))
}

// SkipPhase 跳过失败的阶段
// @Summary 跳过失败阶段
// @Tags Research
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ResearchDoneEvent]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/research/skip [post]
func (h *ResearchHandler) SkipPhase(c *gin.Context) {
	var sink research.ProgressSink
	if h.progress != nil {
		sink = h.progress
	}
	outcome, err := h.controller.SkipResearchPhase(c.Request.Context(), dto.BindProjectID(c), ownerID(c), sink)
	if err != nil {
		writeError(c, err)
		return
	}
	dto.Success(c, toResearchDone(outcome))
}

// Restart 清空调研并从第 1 阶段重新开始
// @Summary 重启调研
// @Tags Research
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.ResearchResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/research/restart [post]
func (h *ResearchHandler) Restart(c *gin.Context) {
	artifact, err := h.controller.RestartResearch(c.Request.Context(), dto.BindProjectID(c), ownerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if h.progress != nil {
		if ev := research.ProgressFromArtifact(artifact); ev != nil {
			h.progress.Emit(c.Request.Context(), *ev)
		}
	}
	dto.Success(c, dto.ToResearchResponse(artifact))
}

// Progress 最近一次调研进度；缓存未命中时由调研产物推导
// @Summary 调研进度
// @Tags Research
// @Produce json
// @Param pid path string true "项目 ID"
// @Success 200 {object} dto.Response[research.ProgressEvent]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/research/progress [get]
func (h *ResearchHandler) Progress(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	owner := ownerID(c)

	// 先校验归属，缓存键不带用户信息
	if _, err := h.controller.GetProject(ctx, projectID, owner); err != nil {
		writeError(c, err)
		return
	}

	loader := func(ctx context.Context) (*research.ProgressEvent, error) {
		artifact, err := h.controller.GetResearch(ctx, projectID, owner)
		if errors.Is(err, apperrors.ErrResearchNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return research.ProgressFromArtifact(artifact), nil
	}

	var (
		ev  *research.ProgressEvent
		err error
	)
	if h.progress != nil {
		ev, err = h.progress.Latest(ctx, projectID, loader)
	} else {
		ev, err = loader(ctx)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if ev == nil {
		writeError(c, apperrors.ErrResearchNotFound.WithDetail("research has not started"))
		return
	}
	dto.Success(c, ev)
}
