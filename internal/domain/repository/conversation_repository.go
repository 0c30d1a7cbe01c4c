package repository

import (
	"context"

	"spec-forge-api/internal/domain/entity"
)

// ConversationTurnRepository 对话日志仓储，只追加
type ConversationTurnRepository interface {
	// Append 分配下一个 order_index 并写入
	Append(ctx context.Context, turn *entity.ConversationTurn) error

	// ListByProject 按 order_index 升序返回全部轮次
	ListByProject(ctx context.Context, projectID string) ([]*entity.ConversationTurn, error)

	// ListAfter 返回 order_index 大于 afterIndex 的轮次
	ListAfter(ctx context.Context, projectID string, afterIndex int) ([]*entity.ConversationTurn, error)

	// LatestByRole 返回指定角色最近一轮，不存在时返回 nil, nil
	LatestByRole(ctx context.Context, projectID string, role entity.Role) (*entity.ConversationTurn, error)
}
