// Package eino 把 Eino 模型回调接到指标、追踪与 token 用量流水
package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"spec-forge-api/internal/domain/service"
)

var initOnce sync.Once

// CostEstimator 按提供商单价估算成本
type CostEstimator interface {
	CostFor(provider string, promptTokens, completionTokens int) float64
}

// NewHandler 只观察 ChatModel 组件；recorder 为 nil 时只采集指标与追踪
func NewHandler(recorder service.LLMUsageRecorder, costs CostEstimator) einocallbacks.Handler {
	return cbtemplate.NewHandlerHelper().
		ChatModel(newChatModelCallbackHandler(recorder, costs)).
		Handler()
}

// Init 进程内只注册一次全局 handler，api-gateway 与 job-worker 都经 wire 调用
func Init(recorder service.LLMUsageRecorder, costs CostEstimator) {
	initOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(NewHandler(recorder, costs))
	})
}
