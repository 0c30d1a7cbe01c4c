package dto

import (
	"time"

	"spec-forge-api/internal/domain/entity"
)

// GenerateRequest 生成文档请求
type GenerateRequest struct {
	Integrations []string `json:"integrations" binding:"max=50,dive,max=128"`
}

// DocumentResponse 规格文档响应
type DocumentResponse struct {
	ID               string                     `json:"id"`
	ProjectID        string                     `json:"project_id"`
	Status           string                     `json:"status"`
	QualityScore     int                        `json:"quality_score"`
	EntityCount      int                        `json:"entity_count"`
	StateChangeCount int                        `json:"state_change_count"`
	ComplexityClass  string                     `json:"complexity_class,omitempty"`
	BuildHoursLow    int                        `json:"build_hours_low"`
	BuildHoursHigh   int                        `json:"build_hours_high"`
	AutoFixApplied   bool                       `json:"auto_fix_applied"`
	Attempt          int                        `json:"attempt"`
	Locked           bool                       `json:"locked"`
	Findings         []entity.ValidationFinding `json:"findings,omitempty"`
	Gates            *entity.SpecGates          `json:"gates,omitempty"`
	FullText         string                     `json:"full_text,omitempty"`
	TotalTokens      int                        `json:"total_tokens"`
	TotalCostUSD     float64                    `json:"total_cost_usd"`
	UpdatedAt        string                     `json:"updated_at"`
}

// GenerateResponse 同步生成结果
type GenerateResponse struct {
	Document      *DocumentResponse `json:"document"`
	Passed        bool              `json:"passed"`
	ProjectStatus string            `json:"project_status"`
}

// JobResponse 异步任务响应
type JobResponse struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// BelowThresholdResponse 质量未达标时 422 的数据体
type BelowThresholdResponse struct {
	DocumentID string                     `json:"document_id"`
	Score      int                        `json:"score"`
	Threshold  int                        `json:"threshold"`
	Findings   []entity.ValidationFinding `json:"findings"`
}

// ToDocumentResponse 转换为规格文档响应
func ToDocumentResponse(d *entity.GeneratedDocument) *DocumentResponse {
	if d == nil {
		return nil
	}
	return &DocumentResponse{
		ID:               d.ID,
		ProjectID:        d.ProjectID,
		Status:           string(d.Status),
		QualityScore:     d.QualityScore,
		EntityCount:      d.EntityCount,
		StateChangeCount: d.StateChangeCount,
		ComplexityClass:  string(d.ComplexityClass),
		BuildHoursLow:    d.BuildHoursLow,
		BuildHoursHigh:   d.BuildHoursHigh,
		AutoFixApplied:   d.AutoFixApplied,
		Attempt:          d.Attempt,
		Locked:           d.Locked,
		Findings:         d.Findings,
		Gates:            d.Gates,
		FullText:         d.FullText,
		TotalTokens:      d.TotalTokens,
		TotalCostUSD:     d.TotalCostUSD,
		UpdatedAt:        d.UpdatedAt.Format(time.RFC3339),
	}
}
