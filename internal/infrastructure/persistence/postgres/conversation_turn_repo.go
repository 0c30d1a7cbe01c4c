// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"spec-forge-api/internal/domain/entity"
)

type ConversationTurnRepository struct {
	client *Client
}

func NewConversationTurnRepository(client *Client) *ConversationTurnRepository {
	return &ConversationTurnRepository{client: client}
}

// Append 在同一语句中分配 order_index，唯一索引兜底并发写入
func (r *ConversationTurnRepository) Append(ctx context.Context, turn *entity.ConversationTurn) error {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var next int
	if err := db.Model(&entity.ConversationTurn{}).
		Where("project_id = ?", turn.ProjectID).
		Select("COALESCE(MAX(order_index), 0) + 1").
		Scan(&next).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to allocate turn order index: %w", err)
	}
	turn.OrderIndex = next

	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append conversation turn: %w", err)
	}
	return nil
}

func (r *ConversationTurnRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.ConversationTurn, error) {
	return r.ListAfter(ctx, projectID, 0)
}

func (r *ConversationTurnRepository) ListAfter(ctx context.Context, projectID string, afterIndex int) ([]*entity.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.ListAfter")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var turns []*entity.ConversationTurn
	if err := db.Where("project_id = ? AND order_index > ?", projectID, afterIndex).
		Order("order_index ASC").
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list conversation turns: %w", err)
	}
	return turns, nil
}

func (r *ConversationTurnRepository) LatestByRole(ctx context.Context, projectID string, role entity.Role) (*entity.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "postgres.ConversationTurnRepository.LatestByRole")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var turn entity.ConversationTurn
	if err := db.Where("project_id = ? AND role = ?", projectID, role).
		Order("order_index DESC").
		First(&turn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest conversation turn: %w", err)
	}
	return &turn, nil
}
