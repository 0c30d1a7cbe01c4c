package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"spec-forge-api/internal/config"
	llmctx "spec-forge-api/internal/domain/service"
	wfnode "spec-forge-api/internal/workflow/node"
	workflowport "spec-forge-api/internal/workflow/port"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// ModelSource 按提供商名称返回 ChatModel，空字符串表示默认提供商；EinoFactory 实现它
type ModelSource interface {
	Get(ctx context.Context, provider string) (model.BaseChatModel, error)
}

// Capability 基于 Eino ChatModel 的模型能力客户端，按档位选择提供商
type Capability struct {
	factory ModelSource
	config  *config.LLMConfig
	now     func() time.Time
}

// NewCapability 创建模型能力客户端
func NewCapability(factory ModelSource, cfg *config.Config) *Capability {
	return &Capability{
		factory: factory,
		config:  &cfg.LLM,
		now:     time.Now,
	}
}

var _ workflowport.Capability = (*Capability)(nil)

// resolve 档位 -> 提供商名称与配置
func (c *Capability) resolve(tier string) (string, config.ProviderConfig, error) {
	name := c.config.DefaultProvider
	if p, ok := c.config.Tiers[strings.TrimSpace(tier)]; ok && p != "" {
		name = p
	}
	providerCfg, ok := c.config.Providers[name]
	if !ok {
		return "", config.ProviderConfig{}, fmt.Errorf("provider %s for tier %q not configured", name, tier)
	}
	return name, providerCfg, nil
}

// CompleteStructured 阻塞调用，优先使用 json_schema；提供商不支持时回退到纯提示词
func (c *Capability) CompleteStructured(ctx context.Context, req *workflowport.CompletionRequest) (*workflowport.Completion, error) {
	if req == nil {
		return nil, fmt.Errorf("completion request is nil")
	}
	provider, providerCfg, err := c.resolve(req.Tier)
	if err != nil {
		return nil, err
	}

	ctx = llmctx.WithWorkflowProvider(ctx, req.Workflow, provider)
	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	msgs := buildMessages(req)
	start := c.now()
	webSearch := req.WebSearch && providerCfg.WebSearch

	outMsg, err := chatModel.Generate(ctx, msgs, buildOptions(req, webSearch, req.Schema != nil)...)
	if err != nil && req.Schema != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"provider", provider,
			"model", providerCfg.Model,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, buildOptions(req, webSearch, false)...)
	}
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response")
	}

	usage := c.usageOf(provider, providerCfg, outMsg)
	usage.Duration = c.now().Sub(start)
	return &workflowport.Completion{Content: outMsg.Content, Usage: usage}, nil
}

// CompleteStreaming 流式调用；建立连接失败时返回错误，流内错误由调用方 Recv 时处理
func (c *Capability) CompleteStreaming(ctx context.Context, req *workflowport.CompletionRequest) (*schema.StreamReader[*schema.Message], error) {
	if req == nil {
		return nil, fmt.Errorf("completion request is nil")
	}
	provider, providerCfg, err := c.resolve(req.Tier)
	if err != nil {
		return nil, err
	}

	ctx = llmctx.WithWorkflowProvider(ctx, req.Workflow, provider)
	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	reader, err := chatModel.Stream(ctx, buildMessages(req), buildOptions(req, req.WebSearch && providerCfg.WebSearch, false)...)
	if err != nil {
		if reader != nil {
			reader.Close()
		}
		return nil, classifyError(ctx, err)
	}
	return reader, nil
}

// EstimateCost 按档位对应提供商的单价计算成本
func (c *Capability) EstimateCost(tier string, promptTokens, completionTokens int) (string, string, float64) {
	provider, providerCfg, err := c.resolve(tier)
	if err != nil {
		return "", "", 0
	}
	return provider, providerCfg.Model, Cost(providerCfg, promptTokens, completionTokens)
}

func (c *Capability) usageOf(provider string, providerCfg config.ProviderConfig, msg *schema.Message) workflowport.Usage {
	usage := workflowport.Usage{Provider: provider, Model: providerCfg.Model}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		usage.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
		usage.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
	}
	usage.CostUSD = Cost(providerCfg, usage.PromptTokens, usage.CompletionTokens)
	if usage.CostUSD > 0 {
		metrics.LLMCostUSD.WithLabelValues(provider, providerCfg.Model).Add(usage.CostUSD)
	}
	return usage
}

// Cost 每千 token 单价换算
func Cost(p config.ProviderConfig, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.InputCostPer1K + float64(completionTokens)/1000*p.OutputCostPer1K
}

func buildMessages(req *workflowport.CompletionRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		msgs = append(msgs, schema.SystemMessage(s))
	}
	return append(msgs, req.Messages...)
}

func buildOptions(req *workflowport.CompletionRequest, webSearch, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 3)
	if req.Temperature != nil && !webSearch {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}

	extra := make(map[string]any, 2)
	if enableSchema {
		name := req.SchemaName
		if name == "" {
			name = "structured_output"
		}
		extra["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   name,
				"strict": false,
				"schema": req.Schema,
			},
		}
	}
	if webSearch {
		extra["web_search_options"] = map[string]any{}
	}
	if len(extra) > 0 {
		opts = append(opts, openaiopts.WithExtraFields(extra))
	}
	return opts
}
