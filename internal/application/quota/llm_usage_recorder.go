package quota

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	"spec-forge-api/internal/domain/service"
)

// maxErrorLen 写入流水的错误信息上限（字节）
const maxErrorLen = 1024

var errNegativeTokens = errors.New("token counts must not be negative")

// LLMUsageRecorder 模型调用流水；没有 owner 的调用（如 CLI 离线任务）不计入配额
type LLMUsageRecorder struct {
	usage repository.LLMUsageEventRepository
}

func NewLLMUsageRecorder(usage repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usage: usage}
}

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usage == nil {
		return nil
	}
	owner := strings.TrimSpace(in.OwnerID)
	if owner == "" {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return errNegativeTokens
	}

	event := &entity.LLMUsageEvent{
		OwnerID:          owner,
		ProjectID:        strings.TrimSpace(in.ProjectID),
		Workflow:         strings.TrimSpace(in.Workflow),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		CostUSD:          in.CostUSD,
		DurationMs:       in.DurationMs,
		Success:          in.Success,
		ErrorMessage:     truncate(in.Error, maxErrorLen),
	}
	return r.usage.Create(ctx, event)
}

// truncate 按字节截断且不切断多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
