// Package research 实现四阶段调研流水线
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	wfchain "spec-forge-api/internal/workflow/chain"
	wfnode "spec-forge-api/internal/workflow/node"
	workflowport "spec-forge-api/internal/workflow/port"
	workflowprompt "spec-forge-api/internal/workflow/prompt"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// StructuredCaller 结构化模型调用
type StructuredCaller interface {
	Call(ctx context.Context, req *workflowport.CompletionRequest, out wfchain.Validatable) (workflowport.Usage, error)
}

// PhaseResult 单个阶段的执行结果
type PhaseResult struct {
	Phase    int
	Payload  any
	Usage    workflowport.Usage
	Summary  string
	Artifact *entity.ResearchArtifact
	// Completed 调研产物已进入 complete
	Completed bool
}

// Pipeline 调研流水线；阶段严格顺序执行，下一阶段由产物状态推导
type Pipeline struct {
	caller  StructuredCaller
	repo    repository.ResearchArtifactRepository
	turns   repository.ConversationTurnRepository
	cfg     config.ResearchConfig
	prompts *workflowprompt.Registry
	now     func() time.Time
}

func NewPipeline(
	caller StructuredCaller,
	repo repository.ResearchArtifactRepository,
	turns repository.ConversationTurnRepository,
	cfg *config.Config,
) *Pipeline {
	return &Pipeline{
		caller:  caller,
		repo:    repo,
		turns:   turns,
		cfg:     cfg.Research,
		prompts: workflowprompt.Default(),
		now:     time.Now,
	}
}

// RunNextPhase 执行产物状态决定的下一个阶段。
// precedingFeedback 为上一次阶段展示之后的用户反馈，是否已收集由调用方负责。
// 产物为 complete 或 failed 时返回 NotReady。
func (p *Pipeline) RunNextPhase(ctx context.Context, artifact *entity.ResearchArtifact, precedingFeedback []*entity.ConversationTurn, sink ProgressSink) (*PhaseResult, error) {
	if artifact == nil {
		return nil, apperrors.ErrResearchNotFound
	}
	n, err := artifact.NextPhase()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// 四个阶段均已写入但未收尾
		if err := p.finalize(ctx, artifact); err != nil {
			return nil, err
		}
		return &PhaseResult{Phase: entity.ResearchPhaseCount, Artifact: artifact, Completed: true}, nil
	}
	if sink == nil {
		sink = MultiSink{}
	}

	metrics.ActivePipelines.Inc()
	defer metrics.ActivePipelines.Dec()

	phaseLabel := fmt.Sprintf("phase_%d", n)
	start := p.now()
	p.emit(ctx, sink, artifact, n, ProgressRunning, fmt.Sprintf("Running %s", PhaseName(n)), PercentFor(n-1))
	logger.Info(ctx, "research phase started",
		"project_id", artifact.ProjectID,
		"artifact_id", artifact.ID,
		"phase", n,
	)

	phaseCtx, cancel := p.phaseContext(ctx)
	payload, usage, err := p.execute(phaseCtx, artifact, n, precedingFeedback)
	cancel()
	if err != nil {
		return nil, p.fail(ctx, sink, artifact, n, err)
	}

	write := repository.PhaseWrite{
		Phase:   n,
		Payload: payload,
		Tokens:  usage.TotalTokens(),
		CostUSD: usage.CostUSD,
	}
	if da, ok := payload.(*entity.DomainAnalysis); ok {
		write.NovelCategory = da.IsNovelCategory()
	}
	if err := p.repo.UpdatePhase(ctx, artifact.ID, write); err != nil {
		if errors.Is(err, apperrors.ErrPhaseAlreadyWritten) {
			return nil, err
		}
		return nil, p.fail(ctx, sink, artifact, n, err)
	}
	if err := artifact.SetPhase(n, payload); err != nil {
		return nil, err
	}
	artifact.AddUsage(write.Tokens, write.CostUSD)

	metrics.ResearchPhaseTotal.WithLabelValues(phaseLabel, "success").Inc()
	metrics.ResearchPhaseDuration.WithLabelValues(phaseLabel).Observe(p.now().Sub(start).Seconds())

	result := &PhaseResult{
		Phase:    n,
		Payload:  payload,
		Usage:    usage,
		Summary:  Present(n, payload, artifact.NovelCategory),
		Artifact: artifact,
	}
	p.emit(ctx, sink, artifact, n, ProgressCompleted, fmt.Sprintf("Completed %s", PhaseName(n)), PercentFor(n))

	if n == entity.ResearchPhaseCount {
		if err := p.finalize(ctx, artifact); err != nil {
			return nil, err
		}
		result.Completed = true
	}
	return result, nil
}

// Run 连续执行剩余阶段直到完成，供自动化任务使用
func (p *Pipeline) Run(ctx context.Context, artifact *entity.ResearchArtifact, feedback []*entity.ConversationTurn, sink ProgressSink) (*entity.ResearchArtifact, error) {
	for artifact.Status != entity.ResearchStatusComplete {
		if err := ctx.Err(); err != nil {
			return artifact, err
		}
		if _, err := p.RunNextPhase(ctx, artifact, feedback, sink); err != nil {
			return artifact, err
		}
	}
	return artifact, nil
}

// Skip 跳过失败阶段，载荷保持为空；跳过第 4 阶段时直接完成
func (p *Pipeline) Skip(ctx context.Context, artifact *entity.ResearchArtifact, sink ProgressSink) (int, error) {
	n, err := artifact.Skip()
	if err != nil {
		return 0, err
	}
	if n == entity.ResearchPhaseCount {
		artifact.Complete()
	}
	if err := p.repo.UpdateStatus(ctx, artifact); err != nil {
		return 0, err
	}

	metrics.ResearchPhaseTotal.WithLabelValues(fmt.Sprintf("phase_%d", n), "skipped").Inc()
	if sink != nil {
		p.emit(ctx, sink, artifact, n, ProgressSkipped, fmt.Sprintf("Continuing without %s", PhaseName(n)), PercentFor(n))
	}
	logger.Info(ctx, "research phase skipped", "artifact_id", artifact.ID, "phase", n)
	return n, nil
}

// Restart 清空全部载荷，从第 1 阶段重新开始
func (p *Pipeline) Restart(ctx context.Context, artifact *entity.ResearchArtifact) (*entity.ResearchArtifact, error) {
	restarted, err := p.repo.Restart(ctx, artifact.ID)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "research pipeline restarted", "artifact_id", artifact.ID, "attempt", restarted.Attempt)
	return restarted, nil
}

func (p *Pipeline) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.PhaseTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.PhaseTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Pipeline) finalize(ctx context.Context, artifact *entity.ResearchArtifact) error {
	artifact.Complete()
	if err := p.repo.UpdateStatus(ctx, artifact); err != nil {
		return err
	}
	logger.Info(ctx, "research pipeline completed",
		"artifact_id", artifact.ID,
		"novel_category", artifact.NovelCategory,
		"skipped_phases", len(artifact.SkippedPhases),
		"total_tokens", artifact.TotalTokens,
		"total_cost_usd", artifact.TotalCostUSD,
	)
	return nil
}

// fail 标记本次尝试失败；即使调用方已取消也要落库失败状态
func (p *Pipeline) fail(ctx context.Context, sink ProgressSink, artifact *entity.ResearchArtifact, n int, cause error) error {
	artifact.MarkFailed(n, cause.Error())
	metrics.ResearchPhaseTotal.WithLabelValues(fmt.Sprintf("phase_%d", n), "failed").Inc()
	logger.Error(ctx, "research phase failed", cause, "artifact_id", artifact.ID, "phase", n)

	writeCtx := context.WithoutCancel(ctx)
	if err := p.repo.UpdateStatus(writeCtx, artifact); err != nil {
		logger.Error(ctx, "failed to persist research failure", err, "artifact_id", artifact.ID)
	}
	p.emit(writeCtx, sink, artifact, n, ProgressFailed, fmt.Sprintf("%s failed: %s", PhaseName(n), cause.Error()), PercentFor(n-1))
	return cause
}

func (p *Pipeline) emit(ctx context.Context, sink ProgressSink, artifact *entity.ResearchArtifact, n int, status ProgressStatus, msg string, percent int) {
	sink.Emit(ctx, ProgressEvent{
		ProjectID:   artifact.ProjectID,
		ArtifactID:  artifact.ID,
		PhaseNumber: n,
		Status:      status,
		Message:     msg,
		Percent:     percent,
		At:          p.now(),
	})
}

func (p *Pipeline) execute(ctx context.Context, artifact *entity.ResearchArtifact, n int, feedback []*entity.ConversationTurn) (any, workflowport.Usage, error) {
	vars, err := p.promptVars(ctx, artifact, feedback)
	if err != nil {
		return nil, workflowport.Usage{}, err
	}

	var (
		id     workflowprompt.PromptID
		target wfchain.Validatable
		sch    map[string]any
	)
	switch n {
	case 1:
		id, target, sch = workflowprompt.PromptResearchDomainV1, &entity.DomainAnalysis{}, domainAnalysisSchema()
	case 2:
		id, target, sch = workflowprompt.PromptResearchFeaturesV1, &entity.FeatureTree{}, featureTreeSchema()
	case 3:
		id, target, sch = workflowprompt.PromptResearchTechV1, &entity.TechRequirements{}, techRequirementsSchema()
	case 4:
		id, target, sch = workflowprompt.PromptResearchGapsV1, &entity.CompetitiveGaps{}, competitiveGapsSchema()
	default:
		return nil, workflowport.Usage{}, fmt.Errorf("invalid research phase %d", n)
	}

	msgs, err := p.prompts.Format(ctx, id, vars)
	if err != nil {
		return nil, workflowport.Usage{}, err
	}
	usage, err := p.caller.Call(ctx, &workflowport.CompletionRequest{
		Workflow:   fmt.Sprintf("research_phase_%d", n),
		Tier:       p.cfg.TierFor(n),
		Messages:   msgs,
		SchemaName: string(id),
		Schema:     sch,
		WebSearch:  n == 1,
	}, target)
	if err != nil {
		return nil, usage, err
	}
	return target, usage, nil
}

const notAvailable = "Not available (phase skipped)."

func (p *Pipeline) promptVars(ctx context.Context, artifact *entity.ResearchArtifact, feedback []*entity.ConversationTurn) (map[string]any, error) {
	description, err := p.description(ctx, artifact.ProjectID)
	if err != nil {
		return nil, err
	}

	var compliance []string
	if artifact.DomainAnalysis != nil {
		compliance = artifact.DomainAnalysis.ComplianceFlags
	}
	return map[string]any{
		"description":       description,
		"feedback":          feedbackText(feedback),
		"novel_category":    fmt.Sprintf("%t", artifact.NovelCategory),
		"domain_analysis":   wfnode.PrettyJSON(artifact.DomainAnalysis, notAvailable),
		"feature_tree":      wfnode.PrettyJSON(artifact.FeatureTree, notAvailable),
		"tech_requirements": wfnode.PrettyJSON(artifact.TechRequirements, notAvailable),
		"compliance_flags":  wfnode.BulletList(compliance, "None detected."),
	}, nil
}

// description 汇总全部用户聊天轮次
func (p *Pipeline) description(ctx context.Context, projectID string) (string, error) {
	turns, err := p.turns.ListByProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(turns))
	for _, t := range entity.UserTurns(turns) {
		if t.Kind == entity.TurnKindChat || t.Kind == entity.TurnKindChangeRequest {
			parts = append(parts, strings.TrimSpace(t.Content))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func feedbackText(turns []*entity.ConversationTurn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role == entity.RoleUser && strings.TrimSpace(t.Content) != "" {
			parts = append(parts, strings.TrimSpace(t.Content))
		}
	}
	if len(parts) == 0 {
		return "None."
	}
	return strings.Join(parts, "\n\n")
}
