package entity

import (
	"time"

	apperrors "spec-forge-api/pkg/errors"
)

// DocumentStatus 规格文档状态
type DocumentStatus string

const (
	DocumentStatusGenerating DocumentStatus = "generating"
	DocumentStatusValidating DocumentStatus = "validating"
	DocumentStatusComplete   DocumentStatus = "complete"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Severity 校验问题级别
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationFinding 确定性校验发现的问题
type ValidationFinding struct {
	Gate       string   `json:"gate"`
	Check      string   `json:"check"`
	Severity   Severity `json:"severity"`
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// GeneratedDocument 项目规格文档，记录下载后锁定
type GeneratedDocument struct {
	ID               string              `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID        string              `json:"project_id" gorm:"type:uuid;uniqueIndex;not null"`
	Status           DocumentStatus      `json:"status" gorm:"type:varchar(32);not null;default:'generating'"`
	Gates            *SpecGates          `json:"gates,omitempty" gorm:"type:jsonb;serializer:json"`
	FullText         string              `json:"full_text,omitempty" gorm:"type:text"`
	EntityCount      int                 `json:"entity_count" gorm:"not null;default:0"`
	StateChangeCount int                 `json:"state_change_count" gorm:"not null;default:0"`
	QualityScore     int                 `json:"quality_score" gorm:"not null;default:0"`
	Findings         []ValidationFinding `json:"findings,omitempty" gorm:"type:jsonb;serializer:json"`
	ComplexityClass  ComplexityClass     `json:"complexity_class,omitempty" gorm:"type:varchar(32)"`
	BuildHoursLow    int                 `json:"build_hours_low" gorm:"not null;default:0"`
	BuildHoursHigh   int                 `json:"build_hours_high" gorm:"not null;default:0"`
	AutoFixApplied   bool                `json:"auto_fix_applied" gorm:"not null;default:false"`
	Attempt          int                 `json:"attempt" gorm:"not null;default:1"`
	TotalTokens      int                 `json:"total_tokens" gorm:"not null;default:0"`
	TotalCostUSD     float64             `json:"total_cost_usd" gorm:"type:numeric(12,6);not null;default:0"`
	Locked           bool                `json:"locked" gorm:"not null;default:false"`
	CreatedAt        time.Time           `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time           `json:"updated_at" gorm:"autoUpdateTime"`
}

func (GeneratedDocument) TableName() string {
	return "generated_documents"
}

// NewGeneratedDocument 创建处于 generating 状态的文档
func NewGeneratedDocument(projectID string) *GeneratedDocument {
	now := time.Now()
	return &GeneratedDocument{
		ProjectID: projectID,
		Status:    DocumentStatusGenerating,
		Attempt:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EnsureMutable 已下载的文档不可再生成
func (d *GeneratedDocument) EnsureMutable() error {
	if d.Locked {
		return apperrors.New(apperrors.CodeNotReady, "document is locked after download")
	}
	return nil
}

// IsComplete 文档是否可供评审与下载
func (d *GeneratedDocument) IsComplete() bool {
	return d.Status == DocumentStatusComplete
}

// ErrorFindings 过滤出 error 级别问题
func (d *GeneratedDocument) ErrorFindings() []ValidationFinding {
	var out []ValidationFinding
	for _, f := range d.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}
