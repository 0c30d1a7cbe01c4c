// Package quota 按用户统计模型 token 用量并执行日配额
package quota

import (
	"context"
	"fmt"
	"time"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// TokenQuotaExceededError errors.Is(err, apperrors.ErrQuotaExceeded) 成立
type TokenQuotaExceededError struct {
	OwnerID string
	Usage   Usage
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: owner=%s used=%d limit=%d", e.OwnerID, e.Usage.Used, e.Usage.Limit)
}

func (e TokenQuotaExceededError) Unwrap() error {
	return apperrors.ErrQuotaExceeded
}

// Usage Limit 为 0 表示不限额
type Usage struct {
	Used  int64
	Limit int64
	Reset time.Time
}

// Remaining 剩余额度，不限额时返回 -1
func (u Usage) Remaining() int64 {
	if u.Limit <= 0 {
		return -1
	}
	return max(u.Limit-u.Used, 0)
}

// TokenQuotaChecker 按 UTC 自然日统计
type TokenQuotaChecker struct {
	usage repository.LLMUsageEventRepository
	limit int64
	now   func() time.Time
}

func NewTokenQuotaChecker(usage repository.LLMUsageEventRepository, cfg *config.Config) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		usage: usage,
		limit: cfg.Quota.DailyTokenLimit,
		now:   time.Now,
	}
}

// dayWindow 当前 UTC 日的 [start, end)
func (c *TokenQuotaChecker) dayWindow() (time.Time, time.Time) {
	start := c.now().UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

// Usage 当日用量；超额时同时返回 TokenQuotaExceededError
func (c *TokenQuotaChecker) Usage(ctx context.Context, ownerID string) (Usage, error) {
	if c == nil || c.limit <= 0 || c.usage == nil {
		return Usage{}, nil
	}
	start, end := c.dayWindow()
	u := Usage{Limit: c.limit, Reset: end}

	used, err := c.usage.GetTokenUsage(ctx, ownerID, start, end)
	if err != nil {
		return u, fmt.Errorf("query token usage: %w", err)
	}
	u.Used = used
	if used >= c.limit {
		logger.Warn(ctx, "daily token quota exhausted", "owner_id", ownerID, "used", used, "limit", c.limit)
		return u, TokenQuotaExceededError{OwnerID: ownerID, Usage: u}
	}
	return u, nil
}

// CheckDailyTokens 调用模型前检查，实现 lifecycle.QuotaChecker
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, ownerID string) error {
	_, err := c.Usage(ctx, ownerID)
	return err
}
