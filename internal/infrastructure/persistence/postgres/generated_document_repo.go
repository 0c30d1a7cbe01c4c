// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"spec-forge-api/internal/domain/entity"
)

type GeneratedDocumentRepository struct {
	client *Client
}

func NewGeneratedDocumentRepository(client *Client) *GeneratedDocumentRepository {
	return &GeneratedDocumentRepository{client: client}
}

// Save 每个项目只保留一份文档，重新生成时沿用原 ID
func (r *GeneratedDocumentRepository) Save(ctx context.Context, doc *entity.GeneratedDocument) error {
	ctx, span := tracer.Start(ctx, "postgres.GeneratedDocumentRepository.Save")
	defer span.End()

	existing, err := r.GetByProject(ctx, doc.ProjectID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := existing.EnsureMutable(); err != nil {
			return err
		}
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	db := getDB(ctx, r.client.db)
	if err := db.Save(doc).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save generated document: %w", err)
	}
	return nil
}

func (r *GeneratedDocumentRepository) GetByProject(ctx context.Context, projectID string) (*entity.GeneratedDocument, error) {
	ctx, span := tracer.Start(ctx, "postgres.GeneratedDocumentRepository.GetByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var doc entity.GeneratedDocument
	if err := db.First(&doc, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get generated document: %w", err)
	}
	return &doc, nil
}

func (r *GeneratedDocumentRepository) UpdateStatus(ctx context.Context, id string, status entity.DocumentStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.GeneratedDocumentRepository.UpdateStatus")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.GeneratedDocument{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

func (r *GeneratedDocumentRepository) Lock(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.GeneratedDocumentRepository.Lock")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.GeneratedDocument{}).Where("id = ?", id).
		UpdateColumn("locked", true).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to lock document: %w", err)
	}
	return nil
}

type DownloadEventRepository struct {
	client *Client
}

func NewDownloadEventRepository(client *Client) *DownloadEventRepository {
	return &DownloadEventRepository{client: client}
}

func (r *DownloadEventRepository) Create(ctx context.Context, event *entity.DownloadEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.DownloadEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create download event: %w", err)
	}
	return nil
}

func (r *DownloadEventRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.DownloadEventRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.DownloadEvent{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count download events: %w", err)
	}
	return count, nil
}
