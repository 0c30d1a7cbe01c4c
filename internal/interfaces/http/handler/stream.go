package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/application/research"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/infrastructure/persistence/redis"
	"spec-forge-api/internal/interfaces/http/dto"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// ProgressStore 调研进度镜像；为 nil 时只向当前连接推送
type ProgressStore interface {
	research.ProgressSink
	Latest(ctx context.Context, projectID string, loader redis.ProgressLoader) (*research.ProgressEvent, error)
}

// StreamHandler SSE 处理器：对话回复与调研进度
type StreamHandler struct {
	controller *lifecycle.Controller
	progress   ProgressStore
}

// NewStreamHandler 创建流式响应处理器
func NewStreamHandler(controller *lifecycle.Controller, progress ProgressStore) *StreamHandler {
	return &StreamHandler{
		controller: controller,
		progress:   progress,
	}
}

func setSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

func sseError(c *gin.Context, err error, extra gin.H) {
	appErr := apperrors.AsAppError(err)
	payload := gin.H{
		"code":    string(appErr.Code),
		"message": appErr.Message,
	}
	if appErr.Detail != "" {
		payload["detail"] = appErr.Detail
	}
	for k, v := range extra {
		payload[k] = v
	}
	c.SSEvent("error", payload)
}

// Chat 发送一条用户消息并以 SSE 流式返回助手回复
// @Summary 对话
// @Description 事件：content{chunk,index}、done{turn_id,ready,status,artifact_id}、error{code,message}
// @Tags Conversation
// @Accept json
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Param body body dto.ChatRequest true "用户消息"
// @Success 200 "SSE stream"
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/chat [post]
func (h *StreamHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	stream, err := h.controller.Chat(ctx, dto.BindProjectID(c), ownerID(c), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	// 客户端中途断开时仍然落库已收到的回复
	defer func() {
		if _, err := stream.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "chat stream closed with error", "error", err.Error())
		}
	}()

	setSSEHeaders(c)
	index := 0
	c.Stream(func(w io.Writer) bool {
		chunk, err := stream.Recv()
		if err == nil {
			c.SSEvent("content", gin.H{
				"chunk": chunk,
				"index": index,
			})
			index++
			return true
		}
		if !errors.Is(err, io.EOF) {
			sseError(c, err, nil)
			return false
		}

		outcome, err := stream.Close(context.WithoutCancel(ctx))
		if err != nil {
			sseError(c, err, nil)
			return false
		}
		if outcome.Ready {
			h.resetProgress(context.WithoutCancel(ctx), outcome.Artifact)
		}
		done := dto.ChatDoneEvent{
			Ready:  outcome.Ready,
			Status: string(outcome.Status),
		}
		if outcome.AssistantTurn != nil {
			done.TurnID = outcome.AssistantTurn.ID
		}
		if outcome.Artifact != nil {
			done.ArtifactID = outcome.Artifact.ID
		}
		c.SSEvent("done", done)
		return false
	})
}

// resetProgress 调研（重新）开始时覆盖进度镜像，避免返回上一轮的结果
func (h *StreamHandler) resetProgress(ctx context.Context, artifact *entity.ResearchArtifact) {
	if h.progress == nil {
		return
	}
	if ev := research.ProgressFromArtifact(artifact); ev != nil {
		h.progress.Emit(ctx, *ev)
	}
}

type researchResult struct {
	outcome *lifecycle.ResearchOutcome
	err     error
}

// RunResearch 执行下一个调研阶段，以 SSE 推送阶段进度
// @Summary 推进调研
// @Description 事件：progress{phase_number,status,percent}、done{phase,artifact_id}、error{code,message,artifact_id}
// @Tags Research
// @Accept json
// @Produce text/event-stream
// @Param pid path string true "项目 ID"
// @Param body body dto.RunResearchRequest false "上一阶段的反馈"
// @Success 200 "SSE stream"
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{pid}/research/next [post]
func (h *StreamHandler) RunResearch(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	owner := ownerID(c)

	var req dto.RunResearchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	events := make(chan research.ProgressEvent, 8)
	done := make(chan researchResult, 1)
	stop := make(chan struct{})
	defer close(stop)

	sink := research.MultiSink{research.ProgressSinkFunc(func(_ context.Context, ev research.ProgressEvent) {
		select {
		case events <- ev:
		case <-stop:
		}
	})}
	if h.progress != nil {
		sink = append(sink, h.progress)
	}

	// 阶段结果落库不受客户端断开影响
	runCtx := context.WithoutCancel(ctx)
	go func() {
		outcome, err := h.controller.RunResearch(runCtx, projectID, owner, req.Feedback, sink)
		done <- researchResult{outcome: outcome, err: err}
	}()

	var pending []research.ProgressEvent
	var result *researchResult
	select {
	case ev := <-events:
		pending = append(pending, ev)
	case r := <-done:
		result = &r
		pending = drainEvents(events, pending)
		if r.err != nil && len(pending) == 0 {
			writeError(c, r.err)
			return
		}
	case <-ctx.Done():
		return
	}

	setSSEHeaders(c)
	c.Stream(func(w io.Writer) bool {
		if len(pending) > 0 {
			c.SSEvent("progress", pending[0])
			pending = pending[1:]
			return true
		}
		if result != nil {
			h.finishResearch(c, projectID, owner, *result)
			return false
		}
		select {
		case ev := <-events:
			c.SSEvent("progress", ev)
			return true
		case r := <-done:
			result = &r
			pending = drainEvents(events, pending)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func drainEvents(events <-chan research.ProgressEvent, pending []research.ProgressEvent) []research.ProgressEvent {
	for {
		select {
		case ev := <-events:
			pending = append(pending, ev)
		default:
			return pending
		}
	}
}

func (h *StreamHandler) finishResearch(c *gin.Context, projectID, owner string, r researchResult) {
	if r.err != nil {
		extra := gin.H{}
		if artifact, err := h.controller.GetResearch(context.WithoutCancel(c.Request.Context()), projectID, owner); err == nil {
			extra["artifact_id"] = artifact.ID
			extra["artifact_status"] = string(artifact.Status)
		}
		sseError(c, r.err, extra)
		return
	}
	c.SSEvent("done", toResearchDone(r.outcome))
}

func toResearchDone(o *lifecycle.ResearchOutcome) *dto.ResearchDoneEvent {
	ev := &dto.ResearchDoneEvent{
		Phase:         o.Phase,
		Skipped:       o.Skipped,
		Summary:       o.Summary,
		ProjectStatus: string(o.Status),
		JobID:         o.JobID,
	}
	if o.Phase > 0 {
		ev.PhaseName = research.PhaseName(o.Phase)
	}
	if o.Artifact != nil {
		ev.ArtifactID = o.Artifact.ID
		ev.ArtifactState = string(o.Artifact.Status)
		if o.Artifact.Status == entity.ResearchStatusComplete && o.Phase == 0 {
			ev.PhaseName = "complete"
		}
	}
	return ev
}
