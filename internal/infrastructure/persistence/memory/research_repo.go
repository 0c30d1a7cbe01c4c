package memory

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

// ResearchArtifactRepository 调研产物仓储
type ResearchArtifactRepository struct {
	s *Store
}

func NewResearchArtifactRepository(s *Store) *ResearchArtifactRepository {
	return &ResearchArtifactRepository{s: s}
}

func (r *ResearchArtifactRepository) Create(_ context.Context, artifact *entity.ResearchArtifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.research[artifact.ProjectID]; exists {
		return apperrors.Newf(apperrors.CodeConflict, "research artifact already exists for project %s", artifact.ProjectID)
	}
	if artifact.ID == "" {
		artifact.ID = newID()
	}
	r.s.research[artifact.ProjectID] = clone(artifact)
	return nil
}

func (r *ResearchArtifactRepository) GetByProject(_ context.Context, projectID string) (*entity.ResearchArtifact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return clone(r.s.research[projectID]), nil
}

func (r *ResearchArtifactRepository) find(id string) *entity.ResearchArtifact {
	for _, a := range r.s.research {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (r *ResearchArtifactRepository) UpdatePhase(_ context.Context, id string, write repository.PhaseWrite) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a := r.find(id)
	if a == nil {
		return apperrors.ErrResearchNotFound
	}
	if err := a.SetPhase(write.Phase, write.Payload); err != nil {
		return err
	}
	if write.Phase == 1 {
		a.NovelCategory = write.NovelCategory
	}
	a.AddUsage(write.Tokens, write.CostUSD)
	return nil
}

func (r *ResearchArtifactRepository) UpdateStatus(_ context.Context, artifact *entity.ResearchArtifact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a := r.find(artifact.ID)
	if a == nil {
		return apperrors.ErrResearchNotFound
	}
	a.Status = artifact.Status
	a.FailedPhase = artifact.FailedPhase
	a.FailureReason = artifact.FailureReason
	a.SkippedPhases = append(a.SkippedPhases[:0:0], artifact.SkippedPhases...)
	a.CompletedAt = artifact.CompletedAt
	a.UpdatedAt = time.Now()
	return nil
}

func (r *ResearchArtifactRepository) SetPresentedTurn(_ context.Context, id string, orderIndex int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a := r.find(id)
	if a == nil {
		return apperrors.ErrResearchNotFound
	}
	a.PresentedTurnIndex = orderIndex
	return nil
}

func (r *ResearchArtifactRepository) Restart(_ context.Context, id string) (*entity.ResearchArtifact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a := r.find(id)
	if a == nil {
		return nil, apperrors.ErrResearchNotFound
	}
	a.Reset()
	return clone(a), nil
}
