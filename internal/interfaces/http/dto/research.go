package dto

import (
	"time"

	"spec-forge-api/internal/domain/entity"
)

// RunResearchRequest 推进调研请求；Feedback 为对上一阶段展示的反馈
type RunResearchRequest struct {
	Feedback string `json:"feedback" binding:"max=20000"`
}

// ResearchResponse 调研产物响应
type ResearchResponse struct {
	ID                 string                   `json:"id"`
	ProjectID          string                   `json:"project_id"`
	Status             string                   `json:"status"`
	CompletedPhases    int                      `json:"completed_phases"`
	FailedPhase        int                      `json:"failed_phase,omitempty"`
	FailureReason      string                   `json:"failure_reason,omitempty"`
	SkippedPhases      []int64                  `json:"skipped_phases,omitempty"`
	NovelCategory      bool                     `json:"novel_category"`
	PresentedTurnIndex int                      `json:"presented_turn_index"`
	DomainAnalysis     *entity.DomainAnalysis   `json:"domain_analysis,omitempty"`
	FeatureTree        *entity.FeatureTree      `json:"feature_tree,omitempty"`
	TechRequirements   *entity.TechRequirements `json:"tech_requirements,omitempty"`
	CompetitiveGaps    *entity.CompetitiveGaps  `json:"competitive_gaps,omitempty"`
	TotalTokens        int                      `json:"total_tokens"`
	TotalCostUSD       float64                  `json:"total_cost_usd"`
	Attempt            int                      `json:"attempt"`
	CompletedAt        string                   `json:"completed_at,omitempty"`
	UpdatedAt          string                   `json:"updated_at"`
}

// ResearchDoneEvent 调研阶段结束事件
type ResearchDoneEvent struct {
	Phase         int    `json:"phase"`
	PhaseName     string `json:"phase_name"`
	Skipped       bool   `json:"skipped"`
	Summary       string `json:"summary,omitempty"`
	ArtifactID    string `json:"artifact_id"`
	ArtifactState string `json:"artifact_status"`
	ProjectStatus string `json:"project_status"`
	JobID         string `json:"job_id,omitempty"`
}

// ToResearchResponse 转换为调研产物响应
func ToResearchResponse(a *entity.ResearchArtifact) *ResearchResponse {
	if a == nil {
		return nil
	}
	resp := &ResearchResponse{
		ID:                 a.ID,
		ProjectID:          a.ProjectID,
		Status:             string(a.Status),
		CompletedPhases:    a.CompletedPhases(),
		FailedPhase:        a.FailedPhase,
		FailureReason:      a.FailureReason,
		SkippedPhases:      a.SkippedPhases,
		NovelCategory:      a.NovelCategory,
		PresentedTurnIndex: a.PresentedTurnIndex,
		DomainAnalysis:     a.DomainAnalysis,
		FeatureTree:        a.FeatureTree,
		TechRequirements:   a.TechRequirements,
		CompetitiveGaps:    a.CompetitiveGaps,
		TotalTokens:        a.TotalTokens,
		TotalCostUSD:       a.TotalCostUSD,
		Attempt:            a.Attempt,
		UpdatedAt:          a.UpdatedAt.Format(time.RFC3339),
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
