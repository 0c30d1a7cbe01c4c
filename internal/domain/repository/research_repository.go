package repository

import (
	"context"

	"spec-forge-api/internal/domain/entity"
)

// PhaseWrite 单个阶段的写入内容
type PhaseWrite struct {
	Phase         int
	Payload       any
	NovelCategory bool
	Tokens        int
	CostUSD       float64
}

// ResearchArtifactRepository 调研产物仓储
type ResearchArtifactRepository interface {
	// Create 创建调研产物，每个项目仅一条
	Create(ctx context.Context, artifact *entity.ResearchArtifact) error

	// GetByProject 获取项目的调研产物，不存在时返回 nil, nil
	GetByProject(ctx context.Context, projectID string) (*entity.ResearchArtifact, error)

	// UpdatePhase 写入阶段载荷并推进状态；载荷非空时返回 PhaseAlreadyWritten
	UpdatePhase(ctx context.Context, id string, write PhaseWrite) error

	// UpdateStatus 写入 failed/complete 等状态
	UpdateStatus(ctx context.Context, artifact *entity.ResearchArtifact) error

	// SetPresentedTurn 记录最近一次阶段展示所在的对话位置
	SetPresentedTurn(ctx context.Context, id string, orderIndex int) error

	// Restart 清空全部载荷并回到 generating
	Restart(ctx context.Context, id string) (*entity.ResearchArtifact, error)
}
