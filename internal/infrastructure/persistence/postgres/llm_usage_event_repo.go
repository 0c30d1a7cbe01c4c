package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/internal/domain/entity"
)

// LLMUsageEventRepository 模型调用流水
type LLMUsageEventRepository struct {
	client *Client
}

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

// Create 用量回调在请求结束后调用，不参与业务事务
func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create",
		trace.WithAttributes(
			attribute.String("spec.workflow", event.Workflow),
			attribute.String("llm.provider", event.Provider),
			attribute.Int("llm.tokens", event.TotalTokens()),
		))
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record llm usage for %s/%s: %w", event.Workflow, event.Provider, err)
	}
	return nil
}

// GetTokenUsage 汇总 owner 在 [start, end) 内的 prompt 与 completion token
func (r *LLMUsageEventRepository) GetTokenUsage(ctx context.Context, ownerID string, startInclusive, endExclusive time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.GetTokenUsage",
		trace.WithAttributes(attribute.String("spec.owner_id", ownerID)))
	defer span.End()

	if ownerID == "" || !endExclusive.After(startInclusive) {
		return 0, nil
	}

	var total int64
	err := getDB(ctx, r.client.db).Model(&entity.LLMUsageEvent{}).
		Where("owner_id = ?", ownerID).
		Where("created_at >= ? AND created_at < ?", startInclusive, endExclusive).
		Select("COALESCE(SUM(tokens_prompt + tokens_completion), 0)").
		Scan(&total).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to sum llm usage: %w", err)
	}
	span.SetAttributes(attribute.Int64("llm.tokens_total", total))
	return total, nil
}
