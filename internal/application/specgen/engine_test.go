package specgen

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/infrastructure/persistence/memory"
	wfchain "spec-forge-api/internal/workflow/chain"
	workflowport "spec-forge-api/internal/workflow/port"
	apperrors "spec-forge-api/pkg/errors"
)

// scriptedCaller 按调用顺序返回预设的结构化输出
type scriptedCaller struct {
	mu       sync.Mutex
	outputs  []any
	requests []*workflowport.CompletionRequest
}

func (s *scriptedCaller) Call(_ context.Context, req *workflowport.CompletionRequest, out wfchain.Validatable) (workflowport.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.outputs) == 0 {
		return workflowport.Usage{}, errors.New("unexpected call")
	}
	next := s.outputs[0]
	s.outputs = s.outputs[1:]
	if err, ok := next.(error); ok {
		return workflowport.Usage{}, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return workflowport.Usage{}, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return workflowport.Usage{}, err
	}
	usage := workflowport.Usage{PromptTokens: 1000, CompletionTokens: 500, CostUSD: 0.01}
	return usage, out.Validate()
}

type engineFixture struct {
	engine *Engine
	caller *scriptedCaller
	docs   *memory.GeneratedDocumentRepository
}

func newEngineFixture(outputs ...any) *engineFixture {
	caller := &scriptedCaller{outputs: outputs}
	docs := memory.NewGeneratedDocumentRepository(memory.NewStore())
	cfg := &config.Config{Generation: config.GenerationConfig{Tier: "advanced", FixTier: "advanced"}}
	return &engineFixture{
		engine: NewEngine(caller, docs, cfg),
		caller: caller,
		docs:   docs,
	}
}

func completeResearch() *entity.ResearchArtifact {
	a := entity.NewResearchArtifact("p-1")
	a.Complete()
	return a
}

func testInput() Input {
	return Input{
		ProjectID:   "p-1",
		ProjectName: "Tasks",
		Research:    completeResearch(),
		Turns: []*entity.ConversationTurn{
			entity.NewConversationTurn("p-1", entity.RoleUser, entity.TurnKindChat, "A shared task list", nil),
		},
	}
}

func withDocument(g *entity.SpecGates, doc string) map[string]any {
	raw, _ := json.Marshal(g)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	out["full_document"] = doc
	return out
}

func TestGeneratePassesWithoutFix(t *testing.T) {
	f := newEngineFixture(withDocument(completeGates(), "# Tasks\n\nFull document."))

	res, err := f.engine.Generate(context.Background(), testInput())
	require.NoError(t, err)
	require.Len(t, f.caller.requests, 1)
	assert.Equal(t, "spec_generate", f.caller.requests[0].Workflow)
	assert.Equal(t, "advanced", f.caller.requests[0].Tier)
	assert.Contains(t, f.caller.requests[0].Messages[len(f.caller.requests[0].Messages)-1].Content, "A shared task list")

	doc := res.Document
	assert.Equal(t, entity.DocumentStatusComplete, doc.Status)
	assert.Equal(t, 100, doc.QualityScore)
	assert.Equal(t, 2, doc.EntityCount)
	assert.Equal(t, 1, doc.StateChangeCount)
	assert.Equal(t, "# Tasks\n\nFull document.", doc.FullText)
	assert.False(t, doc.AutoFixApplied)
	assert.Equal(t, 1500, doc.TotalTokens)

	stored, err := f.docs.GetByProject(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentStatusComplete, stored.Status)
}

func TestGenerateAutoFixRaisesScore(t *testing.T) {
	fixed := completeGates()
	patch := map[string]any{
		"operations":  fixed.Operations,
		"permissions": fixed.Permissions,
	}
	f := newEngineFixture(withDocument(weakGates(), "weak draft"), patch)

	res, err := f.engine.Generate(context.Background(), testInput())
	require.NoError(t, err)
	require.Len(t, f.caller.requests, 2)

	fixReq := f.caller.requests[1]
	assert.Equal(t, "spec_autofix", fixReq.Workflow)
	assert.Contains(t, fixReq.Messages[len(fixReq.Messages)-1].Content, "entity User has no permission rules")
	props := fixReq.Schema["properties"].(map[string]any)
	assert.Len(t, props, 2)
	assert.Contains(t, props, entity.GateOperations)
	assert.Contains(t, props, entity.GatePermissions)

	doc := res.Document
	assert.Equal(t, entity.DocumentStatusComplete, doc.Status)
	assert.True(t, doc.AutoFixApplied)
	assert.GreaterOrEqual(t, doc.QualityScore, QualityThreshold)
	// 修复后的文档由结构化内容重新渲染
	assert.Contains(t, doc.FullText, "## 3. Permissions")
	assert.NotContains(t, doc.FullText, "weak draft")
	assert.Equal(t, 3000, doc.TotalTokens)
}

func TestGenerateStillBelowThresholdFails(t *testing.T) {
	unhelpful := map[string]any{"operations": crud("Task")}
	f := newEngineFixture(withDocument(weakGates(), "weak draft"), unhelpful)

	res, err := f.engine.Generate(context.Background(), testInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationBelowThreshold))

	var below *BelowThresholdError
	require.True(t, errors.As(err, &below))
	assert.Equal(t, 53, below.Score)
	assert.NotEmpty(t, below.Findings)
	assert.Equal(t, res.Document.ID, below.DocumentID)

	stored, _ := f.docs.GetByProject(context.Background(), "p-1")
	assert.Equal(t, entity.DocumentStatusFailed, stored.Status)
	assert.Equal(t, 53, stored.QualityScore)
	assert.False(t, stored.AutoFixApplied)
	// 只尝试一次自动修复
	assert.Len(t, f.caller.requests, 2)
}

func TestGenerateKeepsBetterScore(t *testing.T) {
	// 修复结果删掉了 Task 的读写操作，分数更低时保留原文档
	worse := map[string]any{"operations": ops("Task", entity.OperationCreate)}
	f := newEngineFixture(withDocument(weakGates(), ""), worse)

	res, err := f.engine.Generate(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, 53, res.Report.Score)
	assert.False(t, res.Document.AutoFixApplied)
	assert.Contains(t, res.Document.FullText, "## 1. Entities")
}

func TestGenerateFixCallErrorKeepsOriginal(t *testing.T) {
	f := newEngineFixture(withDocument(weakGates(), "draft"), apperrors.ErrProviderUnavailable)

	res, err := f.engine.Generate(context.Background(), testInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidationBelowThreshold))
	assert.Equal(t, "draft", res.Document.FullText)
}

func TestGenerateRequiresCompleteResearch(t *testing.T) {
	f := newEngineFixture()
	in := testInput()
	in.Research = entity.NewResearchArtifact("p-1")

	_, err := f.engine.Generate(context.Background(), in)
	assert.True(t, errors.Is(err, apperrors.ErrNotReady))
	assert.Empty(t, f.caller.requests)
}

func TestGenerateLockedDocument(t *testing.T) {
	f := newEngineFixture(withDocument(completeGates(), "v1"))
	res, err := f.engine.Generate(context.Background(), testInput())
	require.NoError(t, err)
	require.NoError(t, f.docs.Lock(context.Background(), res.Document.ID))

	_, err = f.engine.Generate(context.Background(), testInput())
	assert.True(t, errors.Is(err, apperrors.ErrNotReady))
	assert.Len(t, f.caller.requests, 1)
}

func TestGenerateRegenerationIncrementsAttempt(t *testing.T) {
	f := newEngineFixture(withDocument(completeGates(), "v1"), withDocument(completeGates(), "v2"))

	first, err := f.engine.Generate(context.Background(), testInput())
	require.NoError(t, err)
	second, err := f.engine.Generate(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, 2, second.Document.Attempt)
	stored, _ := f.docs.GetByProject(context.Background(), "p-1")
	assert.Equal(t, "v2", stored.FullText)
}

func TestGenerateModelFailureMarksDocumentFailed(t *testing.T) {
	f := newEngineFixture(apperrors.ErrMalformedOutput)

	_, err := f.engine.Generate(context.Background(), testInput())
	assert.True(t, errors.Is(err, apperrors.ErrMalformedOutput))

	stored, _ := f.docs.GetByProject(context.Background(), "p-1")
	require.NotNil(t, stored)
	assert.Equal(t, entity.DocumentStatusFailed, stored.Status)
}
