package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/infrastructure/persistence/memory"
	wfchain "spec-forge-api/internal/workflow/chain"
	workflowport "spec-forge-api/internal/workflow/port"
	apperrors "spec-forge-api/pkg/errors"
)

const (
	domainJSON      = `{"competitors":[{"name":"Rover","features":["booking"],"strengths":["brand"],"weaknesses":["fees"]}],"pain_points":["high fees"],"compliance_flags":["payments"],"narrative":"Crowded market."}`
	novelDomainJSON = `{"competitors":[],"pain_points":["no tooling"],"compliance_flags":[],"narrative":"Nobody serves this."}`
	treeJSON        = `{"areas":[{"name":"Booking","sub_features":[{"name":"Calendar","components":[{"id":"booking.calendar","name":"Calendar","competitors_with_it":["Rover"]}]}]}]}`
	techJSON        = `{"components":[{"component_id":"booking.calendar","capability_class":"scheduling","data_fields":["start","end"],"edge_cases":["timezones"],"complexity":"moderate"}],"stack":{"frontend":"React","backend":"Go","database":"Postgres","hosting":"Fly"},"estimates":{"build_hours_low":120,"build_hours_high":200,"monthly_hosting_usd":40}}`
	gapsJSON        = `{"opportunities":[{"title":"Lower fees","rationale":"Users complain","impact":"high"}],"unique_angle":"Flat subscription","mvp_scope":["booking"],"full_scope":["booking","reviews"]}`
)

// routedCapability 按 workflow 返回预设输出
type routedCapability struct {
	mu       sync.Mutex
	replies  map[string][]string
	requests []*workflowport.CompletionRequest
}

func (r *routedCapability) CompleteStructured(_ context.Context, req *workflowport.CompletionRequest) (*workflowport.Completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)

	key := strings.TrimSuffix(req.Workflow, "_repair")
	queue := r.replies[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no reply for %s", req.Workflow)
	}
	out := queue[0]
	r.replies[key] = queue[1:]
	if out == "unavailable" {
		return nil, apperrors.ErrProviderUnavailable
	}
	return &workflowport.Completion{
		Content: out,
		Usage:   workflowport.Usage{Provider: "fake", PromptTokens: 100, CompletionTokens: 50, CostUSD: 0.01},
	}, nil
}

func (r *routedCapability) CompleteStreaming(context.Context, *workflowport.CompletionRequest) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not used")
}

func (r *routedCapability) EstimateCost(string, int, int) (string, string, float64) {
	return "fake", "fake", 0
}

type recordingSink struct {
	events []ProgressEvent
}

func (s *recordingSink) Emit(_ context.Context, e ProgressEvent) {
	s.events = append(s.events, e)
}

type fixture struct {
	pipeline   *Pipeline
	capability *routedCapability
	store      *memory.Store
	artifact   *entity.ResearchArtifact
}

func newFixture(t *testing.T, replies map[string][]string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	turns := memory.NewConversationTurnRepository(store)
	repo := memory.NewResearchArtifactRepository(store)

	require.NoError(t, turns.Append(ctx, entity.NewConversationTurn("p-1", entity.RoleUser, entity.TurnKindChat,
		"A marketplace connecting dog owners with walkers", nil)))

	artifact := entity.NewResearchArtifact("p-1")
	require.NoError(t, repo.Create(ctx, artifact))

	capability := &routedCapability{replies: replies}
	caller := wfchain.NewStructuredCaller(capability, wfchain.RetryPolicy{
		MaxAttempts: 2, Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1,
	})
	cfg := &config.Config{Research: config.ResearchConfig{
		PhaseTiers:   map[string]string{"phase_1": "search", "phase_3": "advanced"},
		PhaseTimeout: time.Minute,
	}}
	return &fixture{
		pipeline:   NewPipeline(caller, repo, turns, cfg),
		capability: capability,
		store:      store,
		artifact:   artifact,
	}
}

func fullReplies(domain string) map[string][]string {
	return map[string][]string{
		"research_phase_1": {domain},
		"research_phase_2": {treeJSON},
		"research_phase_3": {techJSON},
		"research_phase_4": {gapsJSON},
	}
}

func TestRunNextPhaseSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fullReplies(domainJSON))
	sink := &recordingSink{}

	for phase := 1; phase <= 4; phase++ {
		res, err := f.pipeline.RunNextPhase(ctx, f.artifact, nil, sink)
		require.NoError(t, err)
		assert.Equal(t, phase, res.Phase)
		assert.Equal(t, phase == 4, res.Completed)
		assert.NotEmpty(t, res.Summary)
	}

	assert.Equal(t, entity.ResearchStatusComplete, f.artifact.Status)
	assert.NotNil(t, f.artifact.CompletedAt)
	assert.Equal(t, 600, f.artifact.TotalTokens)

	_, err := f.pipeline.RunNextPhase(ctx, f.artifact, nil, sink)
	assert.True(t, errors.Is(err, apperrors.ErrNotReady))

	// 事件按阶段顺序，百分比 = 阶段号 × 25
	require.Len(t, sink.events, 8)
	for i, e := range sink.events {
		phase := i/2 + 1
		assert.Equal(t, phase, e.PhaseNumber)
		if i%2 == 0 {
			assert.Equal(t, ProgressRunning, e.Status)
			assert.Equal(t, (phase-1)*25, e.Percent)
		} else {
			assert.Equal(t, ProgressCompleted, e.Status)
			assert.Equal(t, phase*25, e.Percent)
		}
	}

	stored, err := memory.NewResearchArtifactRepository(f.store).GetByProject(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ResearchStatusComplete, stored.Status)
	assert.Equal(t, "Flat subscription", stored.CompetitiveGaps.UniqueAngle)
}

func TestTierAndSearchPerPhase(t *testing.T) {
	f := newFixture(t, fullReplies(domainJSON))
	_, err := f.pipeline.Run(context.Background(), f.artifact, nil, nil)
	require.NoError(t, err)

	require.Len(t, f.capability.requests, 4)
	assert.Equal(t, "search", f.capability.requests[0].Tier)
	assert.True(t, f.capability.requests[0].WebSearch)
	assert.Equal(t, "fast", f.capability.requests[1].Tier)
	assert.False(t, f.capability.requests[1].WebSearch)
	assert.Equal(t, "advanced", f.capability.requests[2].Tier)
	assert.Contains(t, f.capability.requests[0].Messages[1].Content, "dog owners")
}

func TestNovelCategoryProceeds(t *testing.T) {
	f := newFixture(t, fullReplies(novelDomainJSON))

	artifact, err := f.pipeline.Run(context.Background(), f.artifact, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ResearchStatusComplete, artifact.Status)
	assert.True(t, artifact.NovelCategory)
	assert.NotNil(t, artifact.FeatureTree)
	assert.NotNil(t, artifact.CompetitiveGaps)

	// 后续阶段拿到 novel category 标记
	for _, req := range f.capability.requests[1:] {
		assert.Contains(t, req.Messages[1].Content, "Novel category (no competitors found): true")
	}
}

func TestRepairedPhaseThreePayloadIsPersisted(t *testing.T) {
	replies := fullReplies(domainJSON)
	replies["research_phase_3"] = []string{
		`{"components":[{"component_id":"booking.calendar","complexity":"gigantic"}]}`,
		techJSON,
	}
	f := newFixture(t, replies)

	artifact, err := f.pipeline.Run(context.Background(), f.artifact, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, artifact.TechRequirements)
	assert.Equal(t, entity.ComplexityModerate, artifact.TechRequirements.Components[0].Complexity)

	stored, _ := memory.NewResearchArtifactRepository(f.store).GetByProject(context.Background(), "p-1")
	assert.Equal(t, "Go", stored.TechRequirements.Stack.Backend)
	assert.Equal(t, "research_phase_3_repair", f.capability.requests[3].Workflow)
}

func TestPhaseFailureThenSkip(t *testing.T) {
	ctx := context.Background()
	replies := fullReplies(domainJSON)
	replies["research_phase_2"] = []string{"unavailable", "unavailable"}
	f := newFixture(t, replies)
	sink := &recordingSink{}

	_, err := f.pipeline.RunNextPhase(ctx, f.artifact, nil, sink)
	require.NoError(t, err)

	_, err = f.pipeline.RunNextPhase(ctx, f.artifact, nil, sink)
	assert.True(t, errors.Is(err, apperrors.ErrProviderUnavailable))
	assert.Equal(t, entity.ResearchStatusFailed, f.artifact.Status)
	assert.Equal(t, 2, f.artifact.FailedPhase)
	assert.Equal(t, ProgressFailed, sink.events[len(sink.events)-1].Status)

	_, err = f.pipeline.RunNextPhase(ctx, f.artifact, nil, sink)
	assert.True(t, errors.Is(err, apperrors.ErrNotReady))

	skipped, err := f.pipeline.Skip(ctx, f.artifact, sink)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, ProgressSkipped, sink.events[len(sink.events)-1].Status)

	artifact, err := f.pipeline.Run(ctx, f.artifact, nil, sink)
	require.NoError(t, err)
	assert.Equal(t, entity.ResearchStatusComplete, artifact.Status)
	assert.Nil(t, artifact.FeatureTree)
	assert.True(t, artifact.IsSkipped(2))
}

func TestSkippingPhaseFourCompletes(t *testing.T) {
	ctx := context.Background()
	replies := fullReplies(domainJSON)
	replies["research_phase_4"] = []string{"not json", "still not json"}
	f := newFixture(t, replies)

	_, err := f.pipeline.Run(ctx, f.artifact, nil, nil)
	assert.True(t, errors.Is(err, apperrors.ErrMalformedOutput))

	_, err = f.pipeline.Skip(ctx, f.artifact, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.ResearchStatusComplete, f.artifact.Status)
}

func TestRestartClearsPayloads(t *testing.T) {
	ctx := context.Background()
	replies := fullReplies(domainJSON)
	replies["research_phase_1"] = []string{domainJSON, novelDomainJSON}
	f := newFixture(t, replies)

	_, err := f.pipeline.RunNextPhase(ctx, f.artifact, nil, nil)
	require.NoError(t, err)

	restarted, err := f.pipeline.Restart(ctx, f.artifact)
	require.NoError(t, err)
	assert.Equal(t, entity.ResearchStatusGenerating, restarted.Status)
	assert.Nil(t, restarted.DomainAnalysis)

	res, err := f.pipeline.RunNextPhase(ctx, restarted, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Phase)
	assert.True(t, restarted.NovelCategory)
}

func TestFeedbackReachesPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fullReplies(domainJSON))

	_, err := f.pipeline.RunNextPhase(ctx, f.artifact, nil, nil)
	require.NoError(t, err)

	feedback := []*entity.ConversationTurn{
		entity.NewConversationTurn("p-1", entity.RoleUser, entity.TurnKindFeedback, "Focus on cat sitters too", nil),
	}
	_, err = f.pipeline.RunNextPhase(ctx, f.artifact, feedback, nil)
	require.NoError(t, err)
	assert.Contains(t, f.capability.requests[1].Messages[1].Content, "Focus on cat sitters too")
}
