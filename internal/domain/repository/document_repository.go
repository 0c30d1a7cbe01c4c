package repository

import (
	"context"

	"spec-forge-api/internal/domain/entity"
)

// GeneratedDocumentRepository 规格文档仓储
type GeneratedDocumentRepository interface {
	// Save 按 project_id 创建或替换文档；已锁定时返回 NotReady
	Save(ctx context.Context, doc *entity.GeneratedDocument) error

	// GetByProject 获取项目文档，不存在时返回 nil, nil
	GetByProject(ctx context.Context, projectID string) (*entity.GeneratedDocument, error)

	// UpdateStatus 更新文档状态
	UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error

	// Lock 记录下载后锁定文档
	Lock(ctx context.Context, id string) error
}

// DownloadEventRepository 下载记录仓储，只追加
type DownloadEventRepository interface {
	Create(ctx context.Context, event *entity.DownloadEvent) error
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
