package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/service"
	"spec-forge-api/internal/infrastructure/persistence/memory"
	apperrors "spec-forge-api/pkg/errors"
)

func TestCheckDailyTokens(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewLLMUsageEventRepository(memory.NewStore())
	recorder := NewLLMUsageRecorder(repo)

	cfg := &config.Config{Quota: config.QuotaConfig{DailyTokenLimit: 100}}
	checker := NewTokenQuotaChecker(repo, cfg)

	u, err := checker.Usage(ctx, "owner-1")
	require.NoError(t, err)
	assert.Zero(t, u.Used)
	assert.Equal(t, int64(100), u.Limit)
	assert.Equal(t, int64(100), u.Remaining())

	require.NoError(t, recorder.Record(ctx, service.LLMUsageInput{
		CallAttribution: service.CallAttribution{OwnerID: "owner-1", Workflow: "chat"},
		PromptTokens:    70, CompletionTokens: 40, Success: true,
	}))
	require.NoError(t, recorder.Record(ctx, service.LLMUsageInput{
		CallAttribution: service.CallAttribution{OwnerID: "owner-2", Workflow: "chat"},
		PromptTokens:    500, Success: true,
	}))

	u, err = checker.Usage(ctx, "owner-1")
	assert.Equal(t, int64(110), u.Used)
	assert.Zero(t, u.Remaining())
	assert.True(t, errors.Is(err, apperrors.ErrQuotaExceeded))

	var quotaErr TokenQuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, "owner-1", quotaErr.OwnerID)
	assert.True(t, errors.Is(checker.CheckDailyTokens(ctx, "owner-1"), apperrors.ErrQuotaExceeded))

	// 次日重新计数
	checker.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.NoError(t, checker.CheckDailyTokens(ctx, "owner-1"))
}

func TestRecorderSkipsAnonymousCalls(t *testing.T) {
	repo := memory.NewLLMUsageEventRepository(memory.NewStore())
	recorder := NewLLMUsageRecorder(repo)
	require.NoError(t, recorder.Record(context.Background(), service.LLMUsageInput{PromptTokens: 10}))

	used, err := repo.GetTokenUsage(context.Background(), "", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestRecorderRejectsNegativeTokens(t *testing.T) {
	recorder := NewLLMUsageRecorder(memory.NewLLMUsageEventRepository(memory.NewStore()))
	err := recorder.Record(context.Background(), service.LLMUsageInput{
		CallAttribution: service.CallAttribution{OwnerID: "owner-1"},
		PromptTokens:    -1,
	})
	assert.Error(t, err)
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("错", 10)
	got := truncate(s, 7)
	assert.Equal(t, "错错", got)
	assert.Equal(t, "short", truncate("short", 7))
}

func TestUnlimitedQuota(t *testing.T) {
	checker := NewTokenQuotaChecker(nil, &config.Config{})
	assert.NoError(t, checker.CheckDailyTokens(context.Background(), "owner-1"))

	u, err := checker.Usage(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), u.Remaining())
}
