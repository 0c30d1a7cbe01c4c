package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"spec-forge-api/internal/config"
	wfnode "spec-forge-api/internal/workflow/node"
	workflowport "spec-forge-api/internal/workflow/port"
	workflowprompt "spec-forge-api/internal/workflow/prompt"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// Validatable 反序列化后的结构校验
type Validatable interface {
	Validate() error
}

// RetryPolicy ProviderUnavailable 的重试策略
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// RetryPolicyFromConfig 从 llm.retry 配置构造重试策略
func RetryPolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.Backoff.Initial,
		Max:         cfg.Backoff.Max,
		Multiplier:  cfg.Backoff.Multiplier,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 10 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.Multiplier = p.Multiplier
	return b
}

// StructuredCaller 结构化调用：暂时性故障按退避重试，输出不合法时仅修复一次
type StructuredCaller struct {
	capability workflowport.Capability
	policy     RetryPolicy
	prompts    *workflowprompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*structuredState, *structuredState]
	chainErr  error
}

func NewStructuredCaller(capability workflowport.Capability, policy RetryPolicy) *StructuredCaller {
	return &StructuredCaller{
		capability: capability,
		policy:     policy,
		prompts:    workflowprompt.Default(),
	}
}

type structuredState struct {
	Req     *workflowport.CompletionRequest
	Out     Validatable
	Content string
	Usage   workflowport.Usage
	Err     error
}

// Call 调用模型并把结果解码到 out；返回全部尝试累计的用量
func (c *StructuredCaller) Call(ctx context.Context, req *workflowport.CompletionRequest, out Validatable) (workflowport.Usage, error) {
	if c == nil || c.capability == nil {
		return workflowport.Usage{}, fmt.Errorf("llm capability not configured")
	}
	if req == nil || out == nil {
		return workflowport.Usage{}, fmt.Errorf("request and output target are required")
	}
	if rv := reflect.ValueOf(out); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return workflowport.Usage{}, fmt.Errorf("output target must be a non-nil pointer, got %T", out)
	}

	chain, err := c.getChain()
	if err != nil {
		return workflowport.Usage{}, err
	}
	st, err := chain.Invoke(ctx, &structuredState{Req: req, Out: out})
	if err != nil {
		return workflowport.Usage{}, err
	}
	return st.Usage, st.Err
}

func (c *StructuredCaller) getChain() (compose.Runnable[*structuredState, *structuredState], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

// 节点错误记录在 state.Err 中，保证调用方拿到的是未经框架包装的领域错误
func (c *StructuredCaller) buildChain(ctx context.Context) (compose.Runnable[*structuredState, *structuredState], error) {
	chain := compose.NewChain[*structuredState, *structuredState]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *structuredState) (*structuredState, error) {
			completion, err := c.complete(ctx, st.Req)
			if err != nil {
				st.Err = err
				return st, nil
			}
			st.Content = completion.Content
			st.Usage.Add(completion.Usage)
			return st, nil
		}),
		compose.WithNodeName("structured.generate"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *structuredState) (*structuredState, error) {
			if st.Err != nil {
				return st, nil
			}
			decodeErr := decodeInto(st.Content, st.Out)
			if decodeErr == nil {
				return st, nil
			}

			logger.Warn(ctx, "structured output rejected, requesting repair",
				"workflow", st.Req.Workflow,
				"error", decodeErr.Error(),
			)
			metrics.LLMRetryTotal.WithLabelValues(st.Req.Workflow, "malformed_output").Inc()

			repairReq, err := c.repairRequest(ctx, st.Req, st.Content, decodeErr)
			if err != nil {
				st.Err = err
				return st, nil
			}
			completion, err := c.complete(ctx, repairReq)
			if err != nil {
				st.Err = err
				return st, nil
			}
			st.Content = completion.Content
			st.Usage.Add(completion.Usage)

			resetTarget(st.Out)
			if err := decodeInto(st.Content, st.Out); err != nil {
				st.Err = apperrors.ErrMalformedOutput.
					WithDetail(fmt.Sprintf("%s: %s", st.Req.Workflow, err.Error())).
					WithError(err)
			}
			return st, nil
		}),
		compose.WithNodeName("structured.decode"),
	)

	return chain.Compile(ctx)
}

// complete 仅对 ProviderUnavailable 退避重试，其余错误立即返回
func (c *StructuredCaller) complete(ctx context.Context, req *workflowport.CompletionRequest) (*workflowport.Completion, error) {
	op := func() (*workflowport.Completion, error) {
		out, err := c.capability.CompleteStructured(ctx, req)
		if err != nil {
			if apperrors.IsRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.policy.backOff()),
		backoff.WithMaxTries(uint(c.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.LLMRetryTotal.WithLabelValues(req.Workflow, "provider_unavailable").Inc()
			logger.Warn(ctx, "llm provider unavailable, retrying",
				"workflow", req.Workflow,
				"tier", req.Tier,
				"wait", wait.String(),
				"error", err.Error(),
			)
		}),
	)
}

func (c *StructuredCaller) repairRequest(ctx context.Context, req *workflowport.CompletionRequest, previous string, cause error) (*workflowport.CompletionRequest, error) {
	repairMsgs, err := c.prompts.Format(ctx, workflowprompt.PromptStructuredRepairV1, map[string]any{
		"error": cause.Error(),
	})
	if err != nil {
		return nil, err
	}
	repaired := *req
	repaired.Workflow = req.Workflow + "_repair"
	repaired.Messages = make([]*schema.Message, 0, len(req.Messages)+1+len(repairMsgs))
	repaired.Messages = append(repaired.Messages, req.Messages...)
	repaired.Messages = append(repaired.Messages, schema.AssistantMessage(previous, nil))
	repaired.Messages = append(repaired.Messages, repairMsgs...)
	return &repaired, nil
}

func decodeInto(content string, out Validatable) error {
	raw := wfnode.ExtractJSONObject(content)
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("empty output")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("invalid structure: %w", err)
	}
	return nil
}

func resetTarget(out Validatable) {
	v := reflect.ValueOf(out).Elem()
	v.Set(reflect.Zero(v.Type()))
}
