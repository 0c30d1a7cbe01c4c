package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"spec-forge-api/internal/application/research"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/service"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// ResearchOutcome 一次调研推进的结果
type ResearchOutcome struct {
	Phase        int
	Summary      string
	Skipped      bool
	Artifact     *entity.ResearchArtifact
	Presentation *entity.ConversationTurn
	Status       entity.ProjectStatus
	JobID        string
}

// RunResearch 执行下一个调研阶段。
// 第 2 阶段起，上一次阶段展示之后必须有用户反馈（research.require_feedback）。
func (c *Controller) RunResearch(ctx context.Context, projectID, ownerID, feedback string, sink research.ProgressSink) (*ResearchOutcome, error) {
	project, artifact, err := c.researchContext(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.checkQuota(ctx, ownerID); err != nil {
		return nil, err
	}

	next, err := artifact.NextPhase()
	if err != nil {
		return nil, err
	}
	preceding, err := c.feedbackSince(ctx, projectID, artifact.PresentedTurnIndex)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(feedback)
	if c.cfg.Research.RequireFeedback && next > 1 && len(preceding) == 0 && text == "" {
		return nil, apperrors.Newf(apperrors.CodeNotReady,
			"feedback on %s is required before running %s", research.PhaseName(next-1), research.PhaseName(next))
	}

	// 校验通过后才落库，被拒绝的调用不留下反馈轮次
	if text != "" {
		turn := entity.NewConversationTurn(projectID, entity.RoleUser, entity.TurnKindFeedback, text, nil)
		if err := c.repos.Turns.Append(ctx, turn); err != nil {
			return nil, err
		}
		preceding = append(preceding, turn)
	}

	ctx = service.WithOwnerProject(ctx, ownerID, projectID)
	ctx, cancel := c.withBudget(ctx)
	defer cancel()

	res, err := c.pipeline.RunNextPhase(ctx, artifact, preceding, sink)
	if err != nil {
		c.syncResearchStatus(ctx, project, artifact)
		return nil, err
	}

	outcome := &ResearchOutcome{
		Phase:    res.Phase,
		Summary:  res.Summary,
		Artifact: res.Artifact,
		Status:   project.Status,
	}
	if res.Summary != "" {
		turn, err := c.present(ctx, res.Artifact, res.Phase, res.Summary, false)
		if err != nil {
			return nil, err
		}
		outcome.Presentation = turn
	}
	c.syncResearchStatus(ctx, project, res.Artifact)
	c.publish(ctx, project, service.EventResearchPhaseDone, map[string]any{
		"artifact_id": res.Artifact.ID,
		"phase":       res.Phase,
	})

	if res.Completed {
		jobID, err := c.completeResearch(ctx, project, res.Artifact)
		if err != nil {
			return nil, err
		}
		outcome.Status = project.Status
		outcome.JobID = jobID
	}
	return outcome, nil
}

// SkipResearchPhase 跳过失败阶段继续后续流程
func (c *Controller) SkipResearchPhase(ctx context.Context, projectID, ownerID string, sink research.ProgressSink) (*ResearchOutcome, error) {
	project, artifact, err := c.researchContext(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}

	n, err := c.pipeline.Skip(ctx, artifact, sink)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Continuing without %s.", research.PhaseName(n))
	turn, err := c.present(ctx, artifact, n, summary, true)
	if err != nil {
		return nil, err
	}
	c.syncResearchStatus(ctx, project, artifact)

	outcome := &ResearchOutcome{
		Phase:        n,
		Summary:      summary,
		Skipped:      true,
		Artifact:     artifact,
		Presentation: turn,
		Status:       project.Status,
	}
	if artifact.Status == entity.ResearchStatusComplete {
		jobID, err := c.completeResearch(ctx, project, artifact)
		if err != nil {
			return nil, err
		}
		outcome.Status = project.Status
		outcome.JobID = jobID
	}
	return outcome, nil
}

// RestartResearch 清空调研载荷，从第 1 阶段重新开始
func (c *Controller) RestartResearch(ctx context.Context, projectID, ownerID string) (*entity.ResearchArtifact, error) {
	project, artifact, err := c.researchContext(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	restarted, err := c.pipeline.Restart(ctx, artifact)
	if err != nil {
		return nil, err
	}
	c.syncResearchStatus(ctx, project, restarted)
	return restarted, nil
}

func (c *Controller) researchContext(ctx context.Context, projectID, ownerID string) (*entity.Project, *entity.ResearchArtifact, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if err := c.requireStatus(project, entity.ProjectStatusResearching, "research"); err != nil {
		return nil, nil, err
	}
	artifact, err := c.repos.Research.GetByProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if artifact == nil {
		return nil, nil, apperrors.ErrResearchNotFound
	}
	return project, artifact, nil
}

// feedbackSince 上一次阶段展示之后的用户发言
func (c *Controller) feedbackSince(ctx context.Context, projectID string, presented int) ([]*entity.ConversationTurn, error) {
	turns, err := c.repos.Turns.ListAfter(ctx, projectID, presented)
	if err != nil {
		return nil, err
	}
	return entity.UserTurns(turns), nil
}

// present 追加阶段展示轮次，并把展示位置记为下一阶段反馈的起点
func (c *Controller) present(ctx context.Context, artifact *entity.ResearchArtifact, phase int, summary string, skipped bool) (*entity.ConversationTurn, error) {
	meta := datatypes.JSON(fmt.Sprintf(`{"phase":%d,"artifact_id":%q,"skipped":%t}`, phase, artifact.ID, skipped))
	turn := entity.NewConversationTurn(artifact.ProjectID, entity.RoleAssistant, entity.TurnKindPhasePresentation, summary, meta)
	if err := c.repos.Turns.Append(ctx, turn); err != nil {
		return nil, err
	}
	if err := c.repos.Research.SetPresentedTurn(ctx, artifact.ID, turn.OrderIndex); err != nil {
		return nil, err
	}
	artifact.PresentedTurnIndex = turn.OrderIndex
	return turn, nil
}

// completeResearch researching -> generating；开启自动生成时投递任务
func (c *Controller) completeResearch(ctx context.Context, project *entity.Project, artifact *entity.ResearchArtifact) (string, error) {
	if err := c.advance(ctx, project, entity.ProjectEventResearchComplete); err != nil {
		return "", err
	}
	c.publish(ctx, project, service.EventResearchCompleted, map[string]any{
		"artifact_id":    artifact.ID,
		"novel_category": artifact.NovelCategory,
		"skipped_phases": []int64(artifact.SkippedPhases),
		"total_cost_usd": artifact.TotalCostUSD,
	})

	if !c.cfg.Features.AutoGenerate || c.jobs == nil {
		return "", nil
	}
	jobID, err := c.jobs.EnqueueGenerate(context.WithoutCancel(ctx), service.GenerateJob{
		JobID:       uuid.NewString(),
		ProjectID:   project.ID,
		OwnerID:     project.OwnerID,
		RequestedAt: c.now().UTC(),
	})
	if err != nil {
		// 自动生成失败不影响调研结果，用户仍可手动触发
		logger.Error(ctx, "failed to enqueue spec generation", err, "project_id", project.ID)
		return "", nil
	}
	return jobID, nil
}

func (c *Controller) syncResearchStatus(ctx context.Context, project *entity.Project, artifact *entity.ResearchArtifact) {
	if err := c.repos.Projects.UpdateAuxStatus(context.WithoutCancel(ctx), project.ID, string(artifact.Status), ""); err != nil {
		logger.Warn(ctx, "failed to update research status", "project_id", project.ID, "error", err.Error())
		return
	}
	project.ResearchStatus = string(artifact.Status)
}
