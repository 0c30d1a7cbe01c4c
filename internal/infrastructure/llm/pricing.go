package llm

import "spec-forge-api/internal/config"

// Pricing 提供商单价表
type Pricing struct {
	providers map[string]config.ProviderConfig
}

// NewPricing 从 llm.providers 构造单价表
func NewPricing(cfg *config.Config) *Pricing {
	return &Pricing{providers: cfg.LLM.Providers}
}

// CostFor 未配置单价的提供商成本记为 0
func (p *Pricing) CostFor(provider string, promptTokens, completionTokens int) float64 {
	providerCfg, ok := p.providers[provider]
	if !ok {
		return 0
	}
	return Cost(providerCfg, promptTokens, completionTokens)
}
