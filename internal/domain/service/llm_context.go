package service

import (
	"context"
	"strings"
)

const unknownLabel = "unknown"

// CallAttribution 一次模型调用的归属，供用量回调落库与指标打标签
type CallAttribution struct {
	Workflow  string
	Provider  string
	OwnerID   string
	ProjectID string
}

type attributionKey struct{}

// AttributionFromContext 未设置时返回零值
func AttributionFromContext(ctx context.Context) CallAttribution {
	if ctx == nil {
		return CallAttribution{}
	}
	a, _ := ctx.Value(attributionKey{}).(CallAttribution)
	return a
}

func withAttribution(ctx context.Context, update func(*CallAttribution)) context.Context {
	if ctx == nil {
		return nil
	}
	a := AttributionFromContext(ctx)
	update(&a)
	return context.WithValue(ctx, attributionKey{}, a)
}

// WithWorkflowProvider 空值不覆盖外层已有的设置
func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	workflow, provider = strings.TrimSpace(workflow), strings.TrimSpace(provider)
	return withAttribution(ctx, func(a *CallAttribution) {
		if workflow != "" {
			a.Workflow = workflow
		}
		if provider != "" {
			a.Provider = provider
		}
	})
}

// WithOwnerProject 记录本次调用的计费主体
func WithOwnerProject(ctx context.Context, ownerID, projectID string) context.Context {
	return withAttribution(ctx, func(a *CallAttribution) {
		a.OwnerID = strings.TrimSpace(ownerID)
		a.ProjectID = strings.TrimSpace(projectID)
	})
}

func OwnerProjectFromContext(ctx context.Context) (ownerID, projectID string) {
	a := AttributionFromContext(ctx)
	return a.OwnerID, a.ProjectID
}

// WorkflowFromContext 用作指标标签，未设置时为 unknown
func WorkflowFromContext(ctx context.Context) string {
	return labelOr(AttributionFromContext(ctx).Workflow)
}

func ProviderFromContext(ctx context.Context) string {
	return labelOr(AttributionFromContext(ctx).Provider)
}

func labelOr(v string) string {
	if v == "" {
		return unknownLabel
	}
	return v
}
