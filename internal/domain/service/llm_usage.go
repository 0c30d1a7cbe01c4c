package service

import "context"

// LLMUsageInput 一次模型调用的用量；归属字段来自 ctx 中的 CallAttribution
type LLMUsageInput struct {
	CallAttribution
	Model string

	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	DurationMs       int

	Success bool
	Error   string
}

// TotalTokens 计入每日配额的 token 数
func (in LLMUsageInput) TotalTokens() int {
	return in.PromptTokens + in.CompletionTokens
}

// LLMUsageRecorder 用量落库为 best-effort，失败不影响调用方
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
