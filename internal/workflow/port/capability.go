package port

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// CompletionRequest 一次模型调用的全部输入
type CompletionRequest struct {
	// Workflow 用于指标与用量归档，如 research_phase_1
	Workflow string
	// Tier 模型档位（fast/advanced/search），由配置映射到提供商
	Tier         string
	SystemPrompt string
	Messages     []*schema.Message

	// SchemaName/Schema 非空时请求 json_schema 结构化输出
	SchemaName string
	Schema     map[string]any

	// WebSearch 请求提供商侧联网检索
	WebSearch bool

	MaxTokens   *int
	Temperature *float32
}

// Usage 单次或累计的调用成本
type Usage struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration"`
}

// TotalTokens token 总数
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// Add 累加另一笔用量，提供商与模型以最近一次为准
func (u *Usage) Add(o Usage) {
	if o.Provider != "" {
		u.Provider = o.Provider
	}
	if o.Model != "" {
		u.Model = o.Model
	}
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.CostUSD += o.CostUSD
	u.Duration += o.Duration
}

// Completion 阻塞调用的结果
type Completion struct {
	Content string
	Usage   Usage
}

// Capability 模型能力客户端
//
// CompleteStreaming 返回的流由调用方负责 Close()；流的最后一个分片可能只携带 ResponseMeta.Usage。
// 两个方法在提供商不可用时返回 ProviderUnavailable，其余错误不可重试。
type Capability interface {
	CompleteStreaming(ctx context.Context, req *CompletionRequest) (*schema.StreamReader[*schema.Message], error)
	CompleteStructured(ctx context.Context, req *CompletionRequest) (*Completion, error)
	// EstimateCost 按提供商单价估算成本
	EstimateCost(tier string, promptTokens, completionTokens int) (provider, model string, costUSD float64)
}
