// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

// ProjectRepository 项目仓储实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Create")
	defer span.End()

	if project.StatusChangedAt.IsZero() {
		project.StatusChangedAt = time.Now()
	}
	db := getDB(ctx, r.client.db)
	if err := db.Create(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取项目
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var project entity.Project
	if err := db.First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListByOwner 获取用户项目列表
func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.ListByOwner")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Project{}).Where("owner_id = ?", ownerID)
	return r.page(query, "updated_at DESC", pagination, span)
}

// TransitionStatus 条件更新项目状态
func (r *ProjectRepository) TransitionStatus(ctx context.Context, id string, from, to entity.ProjectStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.TransitionStatus")
	defer span.End()

	if !entity.CanTransition(from, to) {
		return apperrors.Newf(apperrors.CodeIllegalTransition, "transition %s -> %s is not allowed", from, to)
	}

	now := time.Now()
	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.Project{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":            to,
			"status_changed_at": now,
			"updated_at":        now,
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update project status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeIllegalTransition, "project %s is no longer in status %s", id, from)
	}
	return nil
}

// UpdateAuxStatus 更新子状态
func (r *ProjectRepository) UpdateAuxStatus(ctx context.Context, id, researchStatus, specStatus string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.UpdateAuxStatus")
	defer span.End()

	updates := map[string]any{"updated_at": time.Now()}
	if researchStatus != "" {
		updates["research_status"] = researchStatus
	}
	if specStatus != "" {
		updates["spec_status"] = specStatus
	}

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Project{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update project aux status: %w", err)
	}
	return nil
}

// IncrementDownloadCount 下载计数 +1
func (r *ProjectRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.IncrementDownloadCount")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Project{}).Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	return nil
}

// ListByStatusChangedBefore 查询停留超时的项目
func (r *ProjectRepository) ListByStatusChangedBefore(ctx context.Context, status entity.ProjectStatus, before time.Time, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.ListByStatusChangedBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Project{}).Where("status = ? AND status_changed_at < ?", status, before)
	return r.page(query, "status_changed_at ASC", pagination, span)
}

func (r *ProjectRepository) page(query *gorm.DB, order string, pagination repository.Pagination, span trace.Span) (*repository.PagedResult[*entity.Project], error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	var projects []*entity.Project
	if err := query.Session(&gorm.Session{}).Order(order).
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&projects).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return repository.NewPagedResult(projects, total, pagination), nil
}
