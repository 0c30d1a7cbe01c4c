package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"spec-forge-api/internal/config"
	apperrors "spec-forge-api/pkg/errors"
)

// EinoFactory 按提供商名称惰性创建 OpenAI 兼容的 ChatModel，创建后复用
type EinoFactory struct {
	config *config.LLMConfig

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 空名称取 llm.default_provider；未配置的提供商视为不可用
func (f *EinoFactory) Get(ctx context.Context, provider string) (model.BaseChatModel, error) {
	if provider == "" {
		provider = f.config.DefaultProvider
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.models[provider]; ok {
		return m, nil
	}

	p, ok := f.config.Providers[provider]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeProviderUnavailable, "provider %q is not configured", provider)
	}
	if p.APIKey == "" {
		return nil, apperrors.Newf(apperrors.CodeProviderUnavailable, "provider %q has no api key", provider)
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig(p))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderUnavailable, "failed to create chat model for "+provider)
	}
	f.models[provider] = chatModel
	return chatModel, nil
}

// chatModelConfig 联网检索模型不接受 temperature
func chatModelConfig(p config.ProviderConfig) *openai.ChatModelConfig {
	cfg := &openai.ChatModelConfig{
		APIKey:  p.APIKey,
		BaseURL: p.BaseURL,
		Model:   p.Model,
		Timeout: p.Timeout,
	}
	if p.MaxTokens > 0 {
		maxTokens := p.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	if !p.WebSearch {
		temperature := float32(p.Temperature)
		cfg.Temperature = &temperature
	}
	return cfg
}
