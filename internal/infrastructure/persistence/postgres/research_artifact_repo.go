// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

type ResearchArtifactRepository struct {
	client *Client
}

func NewResearchArtifactRepository(client *Client) *ResearchArtifactRepository {
	return &ResearchArtifactRepository{client: client}
}

func (r *ResearchArtifactRepository) table(ctx context.Context) *gorm.DB {
	return getDB(ctx, r.client.db).Table(entity.ResearchArtifact{}.TableName())
}

func (r *ResearchArtifactRepository) Create(ctx context.Context, artifact *entity.ResearchArtifact) error {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(artifact).Error; err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Newf(apperrors.CodeConflict, "research artifact already exists for project %s", artifact.ProjectID)
		}
		return fmt.Errorf("failed to create research artifact: %w", err)
	}
	return nil
}

func (r *ResearchArtifactRepository) GetByProject(ctx context.Context, projectID string) (*entity.ResearchArtifact, error) {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.GetByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var artifact entity.ResearchArtifact
	if err := db.First(&artifact, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get research artifact: %w", err)
	}
	return &artifact, nil
}

// UpdatePhase 仅当载荷列为 NULL 时写入
func (r *ResearchArtifactRepository) UpdatePhase(ctx context.Context, id string, write repository.PhaseWrite) error {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.UpdatePhase")
	defer span.End()

	column, err := entity.PhaseColumn(write.Phase)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(write.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode phase %d payload: %w", write.Phase, err)
	}

	updates := map[string]any{
		column:           datatypes.JSON(raw),
		"status":         entity.PhaseStatus(write.Phase),
		"failed_phase":   0,
		"failure_reason": "",
		"total_tokens":   gorm.Expr("total_tokens + ?", write.Tokens),
		"total_cost_usd": gorm.Expr("total_cost_usd + ?", write.CostUSD),
		"updated_at":     time.Now(),
	}
	if write.Phase == 1 {
		updates["novel_category"] = write.NovelCategory
	}

	res := r.table(ctx).Where("id = ? AND "+column+" IS NULL", id).Updates(updates)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to write research phase %d: %w", write.Phase, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.table(ctx).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check research artifact: %w", err)
		}
		if count == 0 {
			return apperrors.ErrResearchNotFound
		}
		return apperrors.Newf(apperrors.CodePhaseAlreadyWritten, "phase %d payload already written", write.Phase)
	}
	return nil
}

func (r *ResearchArtifactRepository) UpdateStatus(ctx context.Context, artifact *entity.ResearchArtifact) error {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.UpdateStatus")
	defer span.End()

	err := r.table(ctx).Where("id = ?", artifact.ID).Updates(map[string]any{
		"status":         artifact.Status,
		"failed_phase":   artifact.FailedPhase,
		"failure_reason": artifact.FailureReason,
		"skipped_phases": artifact.SkippedPhases,
		"completed_at":   artifact.CompletedAt,
		"updated_at":     time.Now(),
	}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update research status: %w", err)
	}
	return nil
}

func (r *ResearchArtifactRepository) SetPresentedTurn(ctx context.Context, id string, orderIndex int) error {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.SetPresentedTurn")
	defer span.End()

	err := r.table(ctx).Where("id = ?", id).Updates(map[string]any{
		"presented_turn_index": orderIndex,
		"updated_at":           time.Now(),
	}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record presented turn: %w", err)
	}
	return nil
}

// Restart 清空载荷，是唯一允许覆盖已写阶段的入口
func (r *ResearchArtifactRepository) Restart(ctx context.Context, id string) (*entity.ResearchArtifact, error) {
	ctx, span := tracer.Start(ctx, "postgres.ResearchArtifactRepository.Restart")
	defer span.End()

	res := r.table(ctx).Where("id = ?", id).Updates(map[string]any{
		"status":            entity.ResearchStatusGenerating,
		"failed_phase":      0,
		"failure_reason":    "",
		"skipped_phases":    gorm.Expr("NULL"),
		"novel_category":    false,
		"domain_analysis":   gorm.Expr("NULL"),
		"feature_tree":      gorm.Expr("NULL"),
		"tech_requirements": gorm.Expr("NULL"),
		"competitive_gaps":  gorm.Expr("NULL"),
		"total_tokens":      0,
		"total_cost_usd":    0,
		"completed_at":      gorm.Expr("NULL"),
		"attempt":           gorm.Expr("attempt + 1"),
		"updated_at":        time.Now(),
	})
	if res.Error != nil {
		span.RecordError(res.Error)
		return nil, fmt.Errorf("failed to restart research artifact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrResearchNotFound
	}

	var artifact entity.ResearchArtifact
	if err := getDB(ctx, r.client.db).First(&artifact, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to reload research artifact: %w", err)
	}
	return &artifact, nil
}
