package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/internal/domain/service"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// startTimeKey 用于在 Context 中存储调用开始时间
type startTimeKey struct{}

// callObserver 汇总一次模型调用的指标、追踪与用量记录
type callObserver struct {
	usageRecorder service.LLMUsageRecorder
	costs         CostEstimator
}

// newChatModelCallbackHandler 创建模型调用的回调处理器，覆盖阻塞与流式两种输出
func newChatModelCallbackHandler(usageRecorder service.LLMUsageRecorder, costs CostEstimator) *cbtemplate.ModelCallbackHandler {
	o := &callObserver{usageRecorder: usageRecorder, costs: costs}
	return &cbtemplate.ModelCallbackHandler{
		OnStart: o.onStart,
		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			var usage *model.TokenUsage
			if output != nil {
				usage = output.TokenUsage
			}
			o.finish(ctx, modelNameFromOutput(output), usage)
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			// 流式输出的副本必须读完并关闭；usage 通常在最后一个分片
			go func() {
				defer output.Close()
				var (
					usage     *model.TokenUsage
					modelName string
				)
				for {
					chunk, err := output.Recv()
					if err != nil {
						break
					}
					if chunk == nil {
						continue
					}
					if chunk.TokenUsage != nil {
						usage = chunk.TokenUsage
					}
					if name := modelNameFromOutput(chunk); name != "" {
						modelName = name
					}
				}
				o.finish(ctx, modelName, usage)
			}()
			return ctx
		},
		OnError: o.onError,
	}
}

func (o *callObserver) onStart(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
	ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

	attrs := []attribute.KeyValue{
		attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
		attribute.String("llm.provider", service.ProviderFromContext(ctx)),
		attribute.String("llm.model", modelNameFromInput(input)),
	}
	if info != nil {
		attrs = append(attrs,
			attribute.String("eino.node_name", info.Name),
			attribute.String("eino.type", info.Type),
		)
	}

	ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
	return ctx
}

func (o *callObserver) finish(ctx context.Context, modelName string, usage *model.TokenUsage) {
	workflow := service.WorkflowFromContext(ctx)
	provider := service.ProviderFromContext(ctx)
	elapsed := elapsedSeconds(ctx)

	metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "success").Inc()
	if elapsed > 0 {
		metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(elapsed)
	}

	span := trace.SpanFromContext(ctx)
	if usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "completion").Add(float64(usage.CompletionTokens))
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
		o.record(ctx, service.LLMUsageInput{
			Model:            modelName,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			DurationMs:       int(elapsed * 1000),
			Success:          true,
		})
	}
	span.End()
}

func (o *callObserver) onError(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
	workflow := service.WorkflowFromContext(ctx)
	provider := service.ProviderFromContext(ctx)
	modelName := ""
	if info != nil {
		modelName = info.Type
	}

	metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "error").Inc()
	elapsed := elapsedSeconds(ctx)
	if elapsed > 0 {
		metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(elapsed)
	}

	o.record(ctx, service.LLMUsageInput{
		Model:      modelName,
		DurationMs: int(elapsed * 1000),
		Success:    false,
		Error:      err.Error(),
	})

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	return ctx
}

// record 用量落库为 best-effort，失败只记日志
func (o *callObserver) record(ctx context.Context, in service.LLMUsageInput) {
	if o.usageRecorder == nil {
		return
	}
	in.CallAttribution = service.AttributionFromContext(ctx)
	in.Workflow = service.WorkflowFromContext(ctx)
	in.Provider = service.ProviderFromContext(ctx)
	if in.OwnerID == "" {
		return
	}
	if o.costs != nil {
		in.CostUSD = o.costs.CostFor(in.Provider, in.PromptTokens, in.CompletionTokens)
	}
	if err := o.usageRecorder.Record(ctx, in); err != nil {
		logger.Warn(ctx, "failed to record llm usage", "workflow", in.Workflow, "error", err.Error())
	}
}

// elapsedSeconds 计算从 OnStart 到当前的耗时（秒），无开始时间时返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
