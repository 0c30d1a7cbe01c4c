package research

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
)

// ProgressStatus 阶段进度状态
type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
	ProgressSkipped   ProgressStatus = "skipped"
)

// ProgressEvent 有序、至少一次的阶段进度通知；Percent = 阶段号 × 25
type ProgressEvent struct {
	ProjectID   string         `json:"project_id"`
	ArtifactID  string         `json:"artifact_id"`
	PhaseNumber int            `json:"phase_number"`
	Status      ProgressStatus `json:"status"`
	Message     string         `json:"message"`
	Percent     int            `json:"percent"`
	At          time.Time      `json:"at"`
}

// ProgressSink 进度事件的消费方
type ProgressSink interface {
	Emit(ctx context.Context, event ProgressEvent)
}

// ProgressSinkFunc 函数适配器
type ProgressSinkFunc func(ctx context.Context, event ProgressEvent)

func (f ProgressSinkFunc) Emit(ctx context.Context, event ProgressEvent) {
	f(ctx, event)
}

// MultiSink 按顺序分发到多个 sink
type MultiSink []ProgressSink

func (m MultiSink) Emit(ctx context.Context, event ProgressEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// PercentFor 阶段完成百分比
func PercentFor(phase int) int {
	return phase * 25
}

// ProgressFromArtifact 由持久化状态推导最近一次进度，用于进度缓存未命中时回填
func ProgressFromArtifact(a *entity.ResearchArtifact) *ProgressEvent {
	if a == nil {
		return nil
	}
	ev := &ProgressEvent{
		ProjectID:  a.ProjectID,
		ArtifactID: a.ID,
		At:         a.UpdatedAt,
	}
	switch a.Status {
	case entity.ResearchStatusGenerating:
		ev.Status = ProgressRunning
		ev.PhaseNumber = 1
		ev.Message = "research queued"
	case entity.ResearchStatusFailed:
		ev.Status = ProgressFailed
		ev.PhaseNumber = a.FailedPhase
		ev.Message = a.FailureReason
		ev.Percent = PercentFor(a.FailedPhase - 1)
	default:
		n := a.CompletedPhases()
		ev.PhaseNumber = n
		ev.Status = ProgressCompleted
		ev.Percent = PercentFor(n)
		if a.IsSkipped(n) {
			ev.Status = ProgressSkipped
		}
		ev.Message = PhaseName(n) + " ready"
	}
	return ev
}
