package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

func TestTransitionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(NewStore())

	p := entity.NewProject("owner-1", "Clinic booking", "")
	require.NoError(t, repo.Create(ctx, p))
	require.NotEmpty(t, p.ID)

	err := repo.TransitionStatus(ctx, p.ID, entity.ProjectStatusChatting, entity.ProjectStatusReview)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalTransition))

	require.NoError(t, repo.TransitionStatus(ctx, p.ID, entity.ProjectStatusChatting, entity.ProjectStatusResearching))

	// 状态已变化，旧的 from 不再成立
	err = repo.TransitionStatus(ctx, p.ID, entity.ProjectStatusChatting, entity.ProjectStatusResearching)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalTransition))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusResearching, got.Status)
}

func TestReturnedProjectsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(NewStore())
	p := entity.NewProject("owner-1", "Original", "")
	require.NoError(t, repo.Create(ctx, p))

	got, _ := repo.GetByID(ctx, p.ID)
	got.Name = "Mutated"

	again, _ := repo.GetByID(ctx, p.ID)
	assert.Equal(t, "Original", again.Name)
}

func TestUpdatePhaseWriteOnceAndRestart(t *testing.T) {
	ctx := context.Background()
	repo := NewResearchArtifactRepository(NewStore())

	a := entity.NewResearchArtifact("p-1")
	require.NoError(t, repo.Create(ctx, a))

	write := repository.PhaseWrite{Phase: 1, Payload: &entity.DomainAnalysis{Narrative: "first"}, Tokens: 10, CostUSD: 0.01}
	require.NoError(t, repo.UpdatePhase(ctx, a.ID, write))

	write.Payload = &entity.DomainAnalysis{Narrative: "overwrite"}
	err := repo.UpdatePhase(ctx, a.ID, write)
	assert.True(t, errors.Is(err, apperrors.ErrPhaseAlreadyWritten))

	got, _ := repo.GetByProject(ctx, "p-1")
	assert.Equal(t, "first", got.DomainAnalysis.Narrative)
	assert.Equal(t, 10, got.TotalTokens)

	restarted, err := repo.Restart(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, restarted.DomainAnalysis)
	assert.Equal(t, entity.ResearchStatusGenerating, restarted.Status)

	write.Payload = &entity.DomainAnalysis{Narrative: "after restart"}
	require.NoError(t, repo.UpdatePhase(ctx, a.ID, write))
}

func TestConversationAppendAssignsOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationTurnRepository(NewStore())

	for _, role := range []entity.Role{entity.RoleUser, entity.RoleAssistant, entity.RoleUser} {
		turn := entity.NewConversationTurn("p-1", role, entity.TurnKindChat, "hi", nil)
		require.NoError(t, repo.Append(ctx, turn))
	}

	turns, err := repo.ListByProject(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, i+1, turn.OrderIndex)
	}

	after, _ := repo.ListAfter(ctx, "p-1", 2)
	require.Len(t, after, 1)
	assert.Equal(t, 3, after[0].OrderIndex)

	latest, _ := repo.LatestByRole(ctx, "p-1", entity.RoleAssistant)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.OrderIndex)
}

func TestLockedDocumentRejectsSave(t *testing.T) {
	ctx := context.Background()
	repo := NewGeneratedDocumentRepository(NewStore())

	doc := entity.NewGeneratedDocument("p-1")
	require.NoError(t, repo.Save(ctx, doc))
	require.NoError(t, repo.Lock(ctx, doc.ID))

	err := repo.Save(ctx, entity.NewGeneratedDocument("p-1"))
	assert.True(t, errors.Is(err, apperrors.ErrNotReady))
}

func TestListByStatusChangedBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(NewStore())

	old := entity.NewProject("o", "old", "")
	old.Status = entity.ProjectStatusReview
	old.StatusChangedAt = time.Now().Add(-96 * time.Hour)
	fresh := entity.NewProject("o", "fresh", "")
	fresh.Status = entity.ProjectStatusReview
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, fresh))

	res, err := repo.ListByStatusChangedBefore(ctx, entity.ProjectStatusReview, time.Now().Add(-72*time.Hour), repository.NewPagination(1, 10))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "old", res.Items[0].Name)
}

func TestTransactorRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	projects := NewProjectRepository(store)
	turns := NewConversationTurnRepository(store)
	tx := NewTransactor(store)

	p := entity.NewProject("owner-1", "Clinic booking", "")
	require.NoError(t, projects.Create(ctx, p))

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := projects.TransitionStatus(txCtx, p.ID, entity.ProjectStatusChatting, entity.ProjectStatusResearching); err != nil {
			return err
		}
		// 嵌套调用沿用外层事务
		return tx.WithTransaction(txCtx, func(inner context.Context) error {
			turn := entity.NewConversationTurn(p.ID, entity.RoleUser, entity.TurnKindFeedback, "more detail", nil)
			if err := turns.Append(inner, turn); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	got, err := projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusChatting, got.Status)
	listed, err := turns.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return projects.TransitionStatus(txCtx, p.ID, entity.ProjectStatusChatting, entity.ProjectStatusResearching)
	}))
	got, err = projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProjectStatusResearching, got.Status)
}
