package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	workflowport "spec-forge-api/internal/workflow/port"
	apperrors "spec-forge-api/pkg/errors"
)

type reply struct {
	content string
	err     error
}

type scriptedCapability struct {
	replies  []reply
	requests []*workflowport.CompletionRequest
}

func (s *scriptedCapability) CompleteStructured(_ context.Context, req *workflowport.CompletionRequest) (*workflowport.Completion, error) {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &workflowport.Completion{
		Content: r.content,
		Usage:   workflowport.Usage{Provider: "fake", PromptTokens: 10, CompletionTokens: 5, CostUSD: 0.01},
	}, nil
}

func (s *scriptedCapability) CompleteStreaming(context.Context, *workflowport.CompletionRequest) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("not used")
}

func (s *scriptedCapability) EstimateCost(string, int, int) (string, string, float64) {
	return "fake", "fake", 0
}

type summary struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

func (s *summary) Validate() error {
	if s.Title == "" {
		return errors.New("title is required")
	}
	return nil
}

var fastPolicy = RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}

func request() *workflowport.CompletionRequest {
	return &workflowport.CompletionRequest{
		Workflow: "test",
		Tier:     "fast",
		Messages: []*schema.Message{schema.UserMessage("summarize")},
	}
}

func TestCallDecodesWrappedJSON(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{{content: "Here you go:\n{\"title\":\"ok\",\"tags\":[\"a\"]}\nThanks"}}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	usage, err := caller.Call(context.Background(), request(), &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Title)
	assert.Equal(t, 15, usage.TotalTokens())
	assert.Len(t, capability.requests, 1)
}

func TestCallRetriesProviderUnavailable(t *testing.T) {
	unavailable := apperrors.ErrProviderUnavailable.WithError(errors.New("503"))
	capability := &scriptedCapability{replies: []reply{
		{err: unavailable},
		{err: unavailable},
		{content: `{"title":"third time"}`},
	}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	_, err := caller.Call(context.Background(), request(), &out)
	require.NoError(t, err)
	assert.Equal(t, "third time", out.Title)
	assert.Len(t, capability.requests, 3)
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	unavailable := apperrors.ErrProviderUnavailable.WithError(errors.New("timeout"))
	capability := &scriptedCapability{replies: []reply{{err: unavailable}, {err: unavailable}, {err: unavailable}, {content: `{"title":"late"}`}}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	_, err := caller.Call(context.Background(), request(), &out)
	assert.True(t, errors.Is(err, apperrors.ErrProviderUnavailable))
	assert.Len(t, capability.requests, 3)
}

func TestCallDoesNotRetryStructuralErrors(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{{err: errors.New("invalid api key")}, {content: `{"title":"x"}`}}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	_, err := caller.Call(context.Background(), request(), &out)
	assert.EqualError(t, err, "invalid api key")
	assert.Len(t, capability.requests, 1)
}

func TestCallRepairsOnce(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{
		{content: `{"tags":["missing title"]}`},
		{content: `{"title":"fixed"}`},
	}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	usage, err := caller.Call(context.Background(), request(), &out)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.Title)
	assert.Empty(t, out.Tags, "target is reset before the repaired decode")
	assert.Equal(t, 30, usage.TotalTokens())

	require.Len(t, capability.requests, 2)
	repair := capability.requests[1]
	assert.Equal(t, "test_repair", repair.Workflow)
	require.Len(t, repair.Messages, 3)
	assert.Equal(t, schema.Assistant, repair.Messages[1].Role)
	assert.Contains(t, repair.Messages[2].Content, "title is required")
}

func TestCallFailsWithMalformedOutputAfterRepair(t *testing.T) {
	capability := &scriptedCapability{replies: []reply{
		{content: "not json at all"},
		{content: `{"title":""}`},
		{content: `{"title":"never requested"}`},
	}}
	caller := NewStructuredCaller(capability, fastPolicy)

	var out summary
	usage, err := caller.Call(context.Background(), request(), &out)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedOutput))
	assert.Len(t, capability.requests, 2)
	assert.InDelta(t, 0.02, usage.CostUSD, 1e-9)
}

func TestCallRejectsNonPointerTarget(t *testing.T) {
	caller := NewStructuredCaller(&scriptedCapability{}, fastPolicy)
	var out *summary
	_, err := caller.Call(context.Background(), request(), out)
	assert.Error(t, err)
}
