package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	workflowport "spec-forge-api/internal/workflow/port"
	apperrors "spec-forge-api/pkg/errors"
)

type fakeChatModel struct {
	errs  []error
	calls int
	out   *schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.out, nil
}

func (m *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{m.out}), nil
}

type fakeFactory struct {
	models map[string]model.BaseChatModel
	asked  []string
}

func (f *fakeFactory) Get(_ context.Context, provider string) (model.BaseChatModel, error) {
	f.asked = append(f.asked, provider)
	m, ok := f.models[provider]
	if !ok {
		return nil, fmt.Errorf("no model %s", provider)
	}
	return m, nil
}

func testLLMConfig() *config.Config {
	return &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "fast",
		Providers: map[string]config.ProviderConfig{
			"fast":     {Model: "small", InputCostPer1K: 0.001, OutputCostPer1K: 0.002},
			"advanced": {Model: "large", InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
		},
		Tiers: map[string]string{"fast": "fast", "advanced": "advanced"},
	}}
}

func TestCompleteStructuredResolvesTierAndCost(t *testing.T) {
	adv := &fakeChatModel{out: &schema.Message{
		Role:    schema.Assistant,
		Content: `{"ok":true}`,
		ResponseMeta: &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens: 2000, CompletionTokens: 1000,
		}},
	}}
	factory := &fakeFactory{models: map[string]model.BaseChatModel{"advanced": adv}}
	capability := NewCapability(factory, testLLMConfig())

	out, err := capability.CompleteStructured(context.Background(), &workflowport.CompletionRequest{
		Workflow: "spec_generate",
		Tier:     "advanced",
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Schema:   map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"advanced"}, factory.asked)
	assert.Equal(t, `{"ok":true}`, out.Content)
	assert.Equal(t, "large", out.Usage.Model)
	assert.InDelta(t, 0.05, out.Usage.CostUSD, 1e-9)
}

func TestCompleteStructuredFallsBackWithoutSchema(t *testing.T) {
	m := &fakeChatModel{
		errs: []error{errors.New("400 Bad Request: unknown parameter response_format")},
		out:  &schema.Message{Content: "{}"},
	}
	capability := NewCapability(&fakeFactory{models: map[string]model.BaseChatModel{"fast": m}}, testLLMConfig())

	_, err := capability.CompleteStructured(context.Background(), &workflowport.CompletionRequest{
		Tier:   "fast",
		Schema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.calls)
}

func TestCompleteStructuredClassifiesTransientErrors(t *testing.T) {
	m := &fakeChatModel{errs: []error{errors.New("error, status code: 503, message: overloaded")}}
	capability := NewCapability(&fakeFactory{models: map[string]model.BaseChatModel{"fast": m}}, testLLMConfig())

	_, err := capability.CompleteStructured(context.Background(), &workflowport.CompletionRequest{Tier: "fast"})
	assert.True(t, errors.Is(err, apperrors.ErrProviderUnavailable))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"error, status code: 429, message: rate limited", true},
		{"error, status code: 500, message: boom", true},
		{"error, status code: 400, message: bad schema", false},
		{"read tcp: connection reset by peer", true},
		{"context deadline exceeded (Client.Timeout exceeded while awaiting headers)", true},
		{"invalid api key", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(errors.New(tt.err)))
		})
	}
}

func TestUnknownTierUsesDefaultProvider(t *testing.T) {
	capability := NewCapability(&fakeFactory{}, testLLMConfig())
	provider, modelName, cost := capability.EstimateCost("unknown", 1000, 1000)
	assert.Equal(t, "fast", provider)
	assert.Equal(t, "small", modelName)
	assert.InDelta(t, 0.003, cost, 1e-9)
}
