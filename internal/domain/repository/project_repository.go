package repository

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
)

// ProjectRepository 项目仓储接口
type ProjectRepository interface {
	// Create 创建项目
	Create(ctx context.Context, project *entity.Project) error

	// GetByID 根据 ID 获取项目，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// ListByOwner 获取用户项目列表
	ListByOwner(ctx context.Context, ownerID string, pagination Pagination) (*PagedResult[*entity.Project], error)

	// TransitionStatus 条件更新状态：仅当当前状态为 from 且迁移合法时成功，否则返回 IllegalTransition
	TransitionStatus(ctx context.Context, id string, from, to entity.ProjectStatus) error

	// UpdateAuxStatus 更新用于展示的调研/文档子状态，空字符串表示不修改
	UpdateAuxStatus(ctx context.Context, id, researchStatus, specStatus string) error

	// IncrementDownloadCount 下载计数 +1
	IncrementDownloadCount(ctx context.Context, id string) error

	// ListByStatusChangedBefore 查询在某状态停留超过指定时间点的项目
	ListByStatusChangedBefore(ctx context.Context, status entity.ProjectStatus, before time.Time, pagination Pagination) (*PagedResult[*entity.Project], error)
}
