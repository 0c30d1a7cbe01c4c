// Package specgen 实现规格文档生成、确定性校验与一次自动修复
package specgen

import (
	"context"
	"encoding/json"
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

// Input 生成输入
type Input struct {
	ProjectID    string
	ProjectName  string
	Research     *entity.ResearchArtifact
	Turns        []*entity.ConversationTurn
	Integrations []string
}

// Result 生成结果
type Result struct {
	Document *entity.GeneratedDocument
	Report   Report
	Estimate Estimate
	Usage    workflowport.Usage
}

// BelowThresholdError 自动修复后仍未达到阈值；携带最终分数与问题列表
type BelowThresholdError struct {
	DocumentID string
	Score      int
	Findings   []entity.ValidationFinding
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("document quality %d is below threshold %d after auto-fix (%d findings)",
		e.Score, QualityThreshold, len(e.Findings))
}

// Unwrap 使 errors.Is(err, apperrors.ErrValidationBelowThreshold) 成立
func (e *BelowThresholdError) Unwrap() error {
	return apperrors.ErrValidationBelowThreshold
}

type generationOutput struct {
	entity.SpecGates
	FullDocument string `json:"full_document,omitempty"`
}

func (o *generationOutput) Validate() error {
	return o.SpecGates.Validate()
}

// fixOutput 只包含需要修复的 gate
type fixOutput struct {
	entity.SpecGates
}

func (o *fixOutput) Validate() error {
	g := o.SpecGates
	if len(g.Entities)+len(g.StateMachines)+len(g.Permissions)+len(g.Operations)+len(g.Integrations)+len(g.Dependencies) == 0 {
		return errors.New("fix output contains no sections")
	}
	return nil
}

// Engine 文档生成与校验引擎
type Engine struct {
	caller  StructuredCaller
	docs    repository.GeneratedDocumentRepository
	cfg     config.GenerationConfig
	prompts *workflowprompt.Registry
	now     func() time.Time
}

func NewEngine(caller StructuredCaller, docs repository.GeneratedDocumentRepository, cfg *config.Config) *Engine {
	return &Engine{
		caller:  caller,
		docs:    docs,
		cfg:     cfg.Generation,
		prompts: workflowprompt.Default(),
		now:     time.Now,
	}
}

// Generate 生成六个部分并校验；低于阈值时执行一次自动修复，仍不达标则文档标记为 failed
func (e *Engine) Generate(ctx context.Context, in Input) (*Result, error) {
	if in.Research == nil || in.Research.Status != entity.ResearchStatusComplete {
		return nil, apperrors.Newf(apperrors.CodeNotReady, "research for project %s is not complete", in.ProjectID)
	}

	existing, err := e.docs.GetByProject(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	doc := entity.NewGeneratedDocument(in.ProjectID)
	if existing != nil {
		if err := existing.EnsureMutable(); err != nil {
			return nil, err
		}
		doc.Attempt = existing.Attempt + 1
	}
	if err := e.docs.Save(ctx, doc); err != nil {
		return nil, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	start := e.now()

	result := &Result{Document: doc}
	out, usage, err := e.generate(ctx, in)
	result.Usage.Add(usage)
	if err != nil {
		e.markFailed(ctx, doc, result.Usage)
		metrics.SpecGenerationTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	doc.Status = entity.DocumentStatusValidating
	if err := e.docs.Save(ctx, doc); err != nil {
		return nil, err
	}

	components := researchComponents(in.Research)
	gates := &out.SpecGates
	report := Validate(gates, components)
	fullText := strings.TrimSpace(out.FullDocument)
	logger.Info(ctx, "spec document validated",
		"project_id", in.ProjectID,
		"score", report.Score,
		"findings", len(report.Findings),
	)

	if !report.Passed() {
		fixed, fixReport, fixUsage, fixErr := e.autoFix(ctx, in, gates, report)
		result.Usage.Add(fixUsage)
		switch {
		case fixErr != nil:
			logger.Warn(ctx, "auto-fix call failed, keeping original document",
				"project_id", in.ProjectID, "error", fixErr.Error())
			metrics.SpecAutoFixTotal.WithLabelValues("error").Inc()
		case fixReport.Score > report.Score:
			gates, report = fixed, fixReport
			doc.AutoFixApplied = true
			fullText = ""
			metrics.SpecAutoFixTotal.WithLabelValues("improved").Inc()
		default:
			// 修复结果不优于原文档时保留原文档，分数不回退
			metrics.SpecAutoFixTotal.WithLabelValues("unchanged").Inc()
		}
	}

	est := EstimateBuild(gates, in.Research.TechRequirements)
	if fullText == "" {
		fullText = RenderMarkdown(documentTitle(in), gates, est, report.Score)
	}

	doc.Gates = gates
	doc.FullText = fullText
	doc.EntityCount = gates.EntityCount()
	doc.StateChangeCount = gates.StateChangeCount()
	doc.QualityScore = report.Score
	doc.Findings = report.Findings
	doc.ComplexityClass = est.Complexity
	doc.BuildHoursLow = est.BuildHoursLow
	doc.BuildHoursHigh = est.BuildHoursHigh
	doc.TotalTokens = result.Usage.TotalTokens()
	doc.TotalCostUSD = result.Usage.CostUSD

	metrics.SpecQualityScore.Observe(float64(report.Score))
	for _, c := range report.Checks {
		status := "passed"
		if !c.Passed {
			status = "failed"
		}
		metrics.ValidationTotal.WithLabelValues(c.Check, status).Inc()
	}

	result.Report = report
	result.Estimate = est
	if !report.Passed() {
		doc.Status = entity.DocumentStatusFailed
		if err := e.docs.Save(ctx, doc); err != nil {
			return nil, err
		}
		metrics.SpecGenerationTotal.WithLabelValues("below_threshold").Inc()
		return result, &BelowThresholdError{DocumentID: doc.ID, Score: report.Score, Findings: report.Findings}
	}

	doc.Status = entity.DocumentStatusComplete
	if err := e.docs.Save(ctx, doc); err != nil {
		return nil, err
	}
	metrics.SpecGenerationTotal.WithLabelValues("success").Inc()
	logger.Info(ctx, "spec document generated",
		"project_id", in.ProjectID,
		"score", report.Score,
		"auto_fix", doc.AutoFixApplied,
		"duration", e.now().Sub(start).String(),
	)
	return result, nil
}

func (e *Engine) generate(ctx context.Context, in Input) (*generationOutput, workflowport.Usage, error) {
	msgs, err := e.prompts.Format(ctx, workflowprompt.PromptSpecGenerateV1, map[string]any{
		"conversation": conversationText(in.Turns, e.cfg.MaxTurns),
		"research":     researchText(in.Research),
		"integrations": wfnode.BulletList(in.Integrations, "None specified."),
	})
	if err != nil {
		return nil, workflowport.Usage{}, err
	}

	out := &generationOutput{}
	usage, err := e.caller.Call(ctx, &workflowport.CompletionRequest{
		Workflow:   "spec_generate",
		Tier:       tierOr(e.cfg.Tier, "advanced"),
		Messages:   msgs,
		SchemaName: string(workflowprompt.PromptSpecGenerateV1),
		Schema:     generationSchema(),
	}, out)
	if err != nil {
		return nil, usage, err
	}
	return out, usage, nil
}

// autoFix 仅针对失败的 gate 重新生成并合并，然后重新校验一次
func (e *Engine) autoFix(ctx context.Context, in Input, gates *entity.SpecGates, report Report) (*entity.SpecGates, Report, workflowport.Usage, error) {
	failing := report.FailingGates()
	if len(failing) == 0 {
		return nil, Report{}, workflowport.Usage{}, errors.New("no failing sections to fix")
	}

	findings, _ := json.MarshalIndent(errorFindings(report.Findings), "", "  ")
	current, _ := json.MarshalIndent(gates, "", "  ")
	msgs, err := e.prompts.Format(ctx, workflowprompt.PromptSpecFixV1, map[string]any{
		"gates":    strings.Join(failing, ", "),
		"findings": string(findings),
		"document": string(current),
	})
	if err != nil {
		return nil, Report{}, workflowport.Usage{}, err
	}

	patch := &fixOutput{}
	usage, err := e.caller.Call(ctx, &workflowport.CompletionRequest{
		Workflow:   "spec_autofix",
		Tier:       tierOr(e.cfg.FixTier, tierOr(e.cfg.Tier, "advanced")),
		Messages:   msgs,
		SchemaName: string(workflowprompt.PromptSpecFixV1),
		Schema:     fixSchema(failing),
	}, patch)
	if err != nil {
		return nil, Report{}, usage, err
	}

	merged := gates.Merge(&patch.SpecGates, failing)
	return merged, Validate(merged, researchComponents(in.Research)), usage, nil
}

func (e *Engine) markFailed(ctx context.Context, doc *entity.GeneratedDocument, usage workflowport.Usage) {
	doc.Status = entity.DocumentStatusFailed
	doc.TotalTokens = usage.TotalTokens()
	doc.TotalCostUSD = usage.CostUSD
	if err := e.docs.Save(context.WithoutCancel(ctx), doc); err != nil {
		logger.Error(ctx, "failed to persist document failure", err, "project_id", doc.ProjectID)
	}
}

func errorFindings(findings []entity.ValidationFinding) []entity.ValidationFinding {
	out := make([]entity.ValidationFinding, 0, len(findings))
	for _, f := range findings {
		if f.Severity == entity.SeverityError {
			out = append(out, f)
		}
	}
	return out
}

func researchComponents(a *entity.ResearchArtifact) []entity.AtomicComponent {
	if a == nil || a.FeatureTree == nil {
		return nil
	}
	return a.FeatureTree.Components()
}

func researchText(a *entity.ResearchArtifact) string {
	view := struct {
		NovelCategory    bool                     `json:"novel_category"`
		SkippedPhases    []int64                  `json:"skipped_phases,omitempty"`
		DomainAnalysis   *entity.DomainAnalysis   `json:"domain_analysis,omitempty"`
		FeatureTree      *entity.FeatureTree      `json:"feature_tree,omitempty"`
		TechRequirements *entity.TechRequirements `json:"tech_requirements,omitempty"`
		CompetitiveGaps  *entity.CompetitiveGaps  `json:"competitive_gaps,omitempty"`
	}{
		NovelCategory:    a.NovelCategory,
		SkippedPhases:    a.SkippedPhases,
		DomainAnalysis:   a.DomainAnalysis,
		FeatureTree:      a.FeatureTree,
		TechRequirements: a.TechRequirements,
		CompetitiveGaps:  a.CompetitiveGaps,
	}
	return wfnode.PrettyJSON(view, "No research available.")
}

// conversationText 渲染最近 maxTurns 轮对话，0 表示不限制
func conversationText(turns []*entity.ConversationTurn, maxTurns int) string {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	var b strings.Builder
	for _, t := range turns {
		if t.Role == entity.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n\n", t.Role, strings.TrimSpace(t.Content))
	}
	if b.Len() == 0 {
		return "No conversation recorded."
	}
	return strings.TrimSpace(b.String())
}

func documentTitle(in Input) string {
	if strings.TrimSpace(in.ProjectName) != "" {
		return in.ProjectName + " specification"
	}
	return "Application specification"
}

func tierOr(tier, fallback string) string {
	if strings.TrimSpace(tier) != "" {
		return tier
	}
	return fallback
}
