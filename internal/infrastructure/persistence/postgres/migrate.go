package postgres

import (
	"context"
	"fmt"

	"spec-forge-api/internal/domain/entity"
)

// Models 需要建表的全部实体
var Models = []any{
	&entity.Project{},
	&entity.ConversationTurn{},
	&entity.ResearchArtifact{},
	&entity.GeneratedDocument{},
	&entity.DownloadEvent{},
	&entity.LLMUsageEvent{},
}

// Migrate 同步表结构
func (c *Client) Migrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Migrate")
	defer span.End()

	if err := c.db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enable pgcrypto: %w", err)
	}
	if err := c.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
