// Package entity 定义领域实体
package entity

import (
	"time"

	apperrors "spec-forge-api/pkg/errors"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusChatting    ProjectStatus = "chatting"
	ProjectStatusResearching ProjectStatus = "researching"
	ProjectStatusGenerating  ProjectStatus = "generating"
	ProjectStatusReview      ProjectStatus = "review"
	ProjectStatusComplete    ProjectStatus = "complete"
	ProjectStatusArchived    ProjectStatus = "archived"
)

// IsValid 检查状态值是否合法
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusChatting, ProjectStatusResearching, ProjectStatusGenerating,
		ProjectStatusReview, ProjectStatusComplete, ProjectStatusArchived:
		return true
	}
	return false
}

// ProjectEvent 触发项目状态迁移的事件
type ProjectEvent string

const (
	ProjectEventReadyForResearch ProjectEvent = "ready_for_research"
	ProjectEventResearchComplete ProjectEvent = "research_complete"
	ProjectEventSpecAccepted     ProjectEvent = "spec_accepted"
	ProjectEventApprove          ProjectEvent = "approve"
	ProjectEventRequestChanges   ProjectEvent = "request_changes"
	ProjectEventArchive          ProjectEvent = "archive"
)

type transitionKey struct {
	from  ProjectStatus
	event ProjectEvent
}

// projectTransitions 合法迁移表，未列出的组合一律拒绝
var projectTransitions = map[transitionKey]ProjectStatus{
	{ProjectStatusChatting, ProjectEventReadyForResearch}: ProjectStatusResearching,
	{ProjectStatusResearching, ProjectEventResearchComplete}: ProjectStatusGenerating,
	{ProjectStatusGenerating, ProjectEventSpecAccepted}:      ProjectStatusReview,
	{ProjectStatusReview, ProjectEventApprove}:               ProjectStatusComplete,
	{ProjectStatusReview, ProjectEventRequestChanges}:        ProjectStatusChatting,
	{ProjectStatusComplete, ProjectEventArchive}:             ProjectStatusArchived,
}

// NextStatus 根据事件计算目标状态
func NextStatus(from ProjectStatus, event ProjectEvent) (ProjectStatus, error) {
	to, ok := projectTransitions[transitionKey{from: from, event: event}]
	if !ok {
		return "", apperrors.Newf(apperrors.CodeIllegalTransition,
			"event %s is not allowed in status %s", event, from)
	}
	return to, nil
}

// CanTransition 检查 from -> to 是否在迁移表中
func CanTransition(from, to ProjectStatus) bool {
	for k, v := range projectTransitions {
		if k.from == from && v == to {
			return true
		}
	}
	return false
}

// Project 应用规格项目实体
type Project struct {
	ID              string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID         string        `json:"owner_id" gorm:"type:varchar(64);index;not null"`
	Name            string        `json:"name" gorm:"type:varchar(255);not null"`
	Description     string        `json:"description,omitempty" gorm:"type:text"`
	Status          ProjectStatus `json:"status" gorm:"type:varchar(32);index;not null;default:'chatting'"`
	ResearchStatus  string        `json:"research_status,omitempty" gorm:"type:varchar(32)"`
	SpecStatus      string        `json:"spec_status,omitempty" gorm:"type:varchar(32)"`
	DownloadCount   int           `json:"download_count" gorm:"not null;default:0"`
	Version         int           `json:"version" gorm:"not null;default:1"`
	ParentProjectID *string       `json:"parent_project_id,omitempty" gorm:"type:uuid;index"`
	StatusChangedAt time.Time     `json:"status_changed_at" gorm:"index;not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// NewProject 创建新项目，初始状态为 chatting
func NewProject(ownerID, name, description string) *Project {
	now := time.Now()
	return &Project{
		OwnerID:         ownerID,
		Name:            name,
		Description:     description,
		Status:          ProjectStatusChatting,
		Version:         1,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewVersion 基于已完成项目派生新版本，新项目直接进入 review
func (p *Project) NewVersion() (*Project, error) {
	if p.Status != ProjectStatusComplete {
		return nil, apperrors.Newf(apperrors.CodeIllegalTransition,
			"new version requires status %s, got %s", ProjectStatusComplete, p.Status)
	}
	now := time.Now()
	parentID := p.ID
	return &Project{
		OwnerID:         p.OwnerID,
		Name:            p.Name,
		Description:     p.Description,
		Status:          ProjectStatusReview,
		ResearchStatus:  p.ResearchStatus,
		SpecStatus:      p.SpecStatus,
		Version:         p.Version + 1,
		ParentProjectID: &parentID,
		StatusChangedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsOwnedBy 检查所有者
func (p *Project) IsOwnedBy(ownerID string) bool {
	return p.OwnerID == ownerID
}

// TimeInStatus 返回自最近一次状态迁移以来经过的时间
func (p *Project) TimeInStatus(now time.Time) time.Duration {
	if p.StatusChangedAt.IsZero() {
		return now.Sub(p.CreatedAt)
	}
	return now.Sub(p.StatusChangedAt)
}
