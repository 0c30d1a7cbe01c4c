package repository

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
)

// LLMUsageEventRepository 模型调用流水，只追加；配额检查按 [start, end) 汇总
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	GetTokenUsage(ctx context.Context, ownerID string, startInclusive, endExclusive time.Time) (int64, error)
}
