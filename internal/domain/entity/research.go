package entity

import (
	"fmt"
	"slices"
	"time"

	"github.com/lib/pq"

	apperrors "spec-forge-api/pkg/errors"
)

// ResearchStatus 调研产物状态
type ResearchStatus string

const (
	ResearchStatusGenerating ResearchStatus = "generating"
	ResearchStatusPhase1     ResearchStatus = "phase_1"
	ResearchStatusPhase2     ResearchStatus = "phase_2"
	ResearchStatusPhase3     ResearchStatus = "phase_3"
	ResearchStatusPhase4     ResearchStatus = "phase_4"
	ResearchStatusComplete   ResearchStatus = "complete"
	ResearchStatusFailed     ResearchStatus = "failed"
)

// ResearchPhaseCount 调研阶段总数
const ResearchPhaseCount = 4

// PhaseStatus 返回 phase n 写入后的状态
func PhaseStatus(n int) ResearchStatus {
	return ResearchStatus(fmt.Sprintf("phase_%d", n))
}

// PhaseColumn 返回 phase n 对应的载荷列名
func PhaseColumn(n int) (string, error) {
	switch n {
	case 1:
		return "domain_analysis", nil
	case 2:
		return "feature_tree", nil
	case 3:
		return "tech_requirements", nil
	case 4:
		return "competitive_gaps", nil
	default:
		return "", fmt.Errorf("invalid research phase %d", n)
	}
}

// ResearchArtifact 项目调研产物，每个阶段载荷只写一次
type ResearchArtifact struct {
	ID                 string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID          string            `json:"project_id" gorm:"type:uuid;uniqueIndex;not null"`
	Status             ResearchStatus    `json:"status" gorm:"type:varchar(32);not null;default:'generating'"`
	FailedPhase        int               `json:"failed_phase,omitempty" gorm:"not null;default:0"`
	FailureReason      string            `json:"failure_reason,omitempty" gorm:"type:text"`
	SkippedPhases      pq.Int64Array     `json:"skipped_phases,omitempty" gorm:"type:integer[]"`
	NovelCategory      bool              `json:"novel_category" gorm:"not null;default:false"`
	PresentedTurnIndex int               `json:"presented_turn_index" gorm:"not null;default:0"`
	DomainAnalysis     *DomainAnalysis   `json:"domain_analysis,omitempty" gorm:"type:jsonb;serializer:json"`
	FeatureTree        *FeatureTree      `json:"feature_tree,omitempty" gorm:"type:jsonb;serializer:json"`
	TechRequirements   *TechRequirements `json:"tech_requirements,omitempty" gorm:"type:jsonb;serializer:json"`
	CompetitiveGaps    *CompetitiveGaps  `json:"competitive_gaps,omitempty" gorm:"type:jsonb;serializer:json"`
	TotalTokens        int               `json:"total_tokens" gorm:"not null;default:0"`
	TotalCostUSD       float64           `json:"total_cost_usd" gorm:"type:numeric(12,6);not null;default:0"`
	Attempt            int               `json:"attempt" gorm:"not null;default:1"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ResearchArtifact) TableName() string {
	return "research_artifacts"
}

// NewResearchArtifact 项目进入 researching 时创建
func NewResearchArtifact(projectID string) *ResearchArtifact {
	now := time.Now()
	return &ResearchArtifact{
		ProjectID: projectID,
		Status:    ResearchStatusGenerating,
		Attempt:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NextPhase 返回下一个待执行阶段；0 表示四个阶段已写入，只需收尾
func (a *ResearchArtifact) NextPhase() (int, error) {
	switch a.Status {
	case ResearchStatusGenerating:
		return 1, nil
	case ResearchStatusPhase1:
		return 2, nil
	case ResearchStatusPhase2:
		return 3, nil
	case ResearchStatusPhase3:
		return 4, nil
	case ResearchStatusPhase4:
		return 0, nil
	case ResearchStatusFailed:
		return 0, apperrors.Newf(apperrors.CodeNotReady,
			"research phase %d failed; skip or restart the pipeline", a.FailedPhase)
	default:
		return 0, apperrors.Newf(apperrors.CodeNotReady, "research artifact is %s", a.Status)
	}
}

// CompletedPhases 已写入或已跳过的阶段数
func (a *ResearchArtifact) CompletedPhases() int {
	switch a.Status {
	case ResearchStatusPhase1:
		return 1
	case ResearchStatusPhase2:
		return 2
	case ResearchStatusPhase3:
		return 3
	case ResearchStatusPhase4, ResearchStatusComplete:
		return 4
	case ResearchStatusFailed:
		return a.FailedPhase - 1
	default:
		return 0
	}
}

// HasPhase 检查阶段载荷是否已写入
func (a *ResearchArtifact) HasPhase(n int) bool {
	switch n {
	case 1:
		return a.DomainAnalysis != nil
	case 2:
		return a.FeatureTree != nil
	case 3:
		return a.TechRequirements != nil
	case 4:
		return a.CompetitiveGaps != nil
	}
	return false
}

// SetPhase 写入阶段载荷，已写入时返回 PhaseAlreadyWritten
func (a *ResearchArtifact) SetPhase(n int, payload any) error {
	if a.HasPhase(n) {
		return apperrors.Newf(apperrors.CodePhaseAlreadyWritten, "phase %d payload already written", n)
	}
	switch p := payload.(type) {
	case *DomainAnalysis:
		if n != 1 {
			return fmt.Errorf("domain analysis belongs to phase 1, got %d", n)
		}
		a.DomainAnalysis = p
		a.NovelCategory = p.IsNovelCategory()
	case *FeatureTree:
		if n != 2 {
			return fmt.Errorf("feature tree belongs to phase 2, got %d", n)
		}
		a.FeatureTree = p
	case *TechRequirements:
		if n != 3 {
			return fmt.Errorf("tech requirements belong to phase 3, got %d", n)
		}
		a.TechRequirements = p
	case *CompetitiveGaps:
		if n != 4 {
			return fmt.Errorf("competitive gaps belong to phase 4, got %d", n)
		}
		a.CompetitiveGaps = p
	default:
		return fmt.Errorf("unsupported phase payload %T", payload)
	}
	a.Status = PhaseStatus(n)
	a.FailedPhase = 0
	a.FailureReason = ""
	a.UpdatedAt = time.Now()
	return nil
}

// PhasePayload 返回阶段载荷，未写入时返回 nil
func (a *ResearchArtifact) PhasePayload(n int) any {
	switch n {
	case 1:
		if a.DomainAnalysis != nil {
			return a.DomainAnalysis
		}
	case 2:
		if a.FeatureTree != nil {
			return a.FeatureTree
		}
	case 3:
		if a.TechRequirements != nil {
			return a.TechRequirements
		}
	case 4:
		if a.CompetitiveGaps != nil {
			return a.CompetitiveGaps
		}
	}
	return nil
}

// MarkFailed 标记本次尝试在 phase n 失败
func (a *ResearchArtifact) MarkFailed(n int, reason string) {
	a.Status = ResearchStatusFailed
	a.FailedPhase = n
	a.FailureReason = reason
	a.UpdatedAt = time.Now()
}

// Skip 跳过失败阶段，载荷保持为空
func (a *ResearchArtifact) Skip() (int, error) {
	if a.Status != ResearchStatusFailed || a.FailedPhase < 1 || a.FailedPhase > ResearchPhaseCount {
		return 0, apperrors.Newf(apperrors.CodeNotReady, "only a failed phase can be skipped, status is %s", a.Status)
	}
	n := a.FailedPhase
	if !slices.Contains(a.SkippedPhases, int64(n)) {
		a.SkippedPhases = append(a.SkippedPhases, int64(n))
	}
	a.Status = PhaseStatus(n)
	a.FailedPhase = 0
	a.FailureReason = ""
	a.UpdatedAt = time.Now()
	return n, nil
}

// IsSkipped 检查阶段是否被跳过
func (a *ResearchArtifact) IsSkipped(n int) bool {
	return slices.Contains(a.SkippedPhases, int64(n))
}

// Complete 标记调研完成
func (a *ResearchArtifact) Complete() {
	now := time.Now()
	a.Status = ResearchStatusComplete
	a.CompletedAt = &now
	a.UpdatedAt = now
}

// Reset 完整重启：清空全部载荷
func (a *ResearchArtifact) Reset() {
	a.Status = ResearchStatusGenerating
	a.FailedPhase = 0
	a.FailureReason = ""
	a.SkippedPhases = nil
	a.NovelCategory = false
	a.DomainAnalysis = nil
	a.FeatureTree = nil
	a.TechRequirements = nil
	a.CompetitiveGaps = nil
	a.TotalTokens = 0
	a.TotalCostUSD = 0
	a.CompletedAt = nil
	a.Attempt++
	a.UpdatedAt = time.Now()
}

// AddUsage 累计成本
func (a *ResearchArtifact) AddUsage(tokens int, costUSD float64) {
	a.TotalTokens += tokens
	a.TotalCostUSD += costUSD
}
