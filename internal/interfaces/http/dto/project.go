package dto

import (
	"time"

	"spec-forge-api/internal/domain/entity"
)

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description" binding:"max=20000"`
}

// RequestChangesRequest 评审退回请求
type RequestChangesRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// ProjectResponse 项目响应
type ProjectResponse struct {
	ID                  string  `json:"id"`
	OwnerID             string  `json:"owner_id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	Status              string  `json:"status"`
	ResearchStatus      string  `json:"research_status,omitempty"`
	SpecStatus          string  `json:"spec_status,omitempty"`
	DownloadCount       int     `json:"download_count"`
	Version             int     `json:"version"`
	ParentProjectID     *string `json:"parent_project_id,omitempty"`
	StatusChangedAt     string  `json:"status_changed_at"`
	TimeInStatusSeconds int64   `json:"time_in_status_seconds"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// ProjectListResponse 项目列表响应
type ProjectListResponse struct {
	Projects []*ProjectResponse `json:"projects"`
}

// ToProjectResponse 转换为项目响应
func ToProjectResponse(p *entity.Project, now time.Time) *ProjectResponse {
	if p == nil {
		return nil
	}
	return &ProjectResponse{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		Name:                p.Name,
		Description:         p.Description,
		Status:              string(p.Status),
		ResearchStatus:      p.ResearchStatus,
		SpecStatus:          p.SpecStatus,
		DownloadCount:       p.DownloadCount,
		Version:             p.Version,
		ParentProjectID:     p.ParentProjectID,
		StatusChangedAt:     p.StatusChangedAt.Format(time.RFC3339),
		TimeInStatusSeconds: int64(p.TimeInStatus(now).Seconds()),
		CreatedAt:           p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           p.UpdatedAt.Format(time.RFC3339),
	}
}

// ToProjectListResponse 转换为项目列表响应
func ToProjectListResponse(projects []*entity.Project, now time.Time) *ProjectListResponse {
	out := make([]*ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, ToProjectResponse(p, now))
	}
	return &ProjectListResponse{Projects: out}
}
