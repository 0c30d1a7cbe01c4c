package memory

import (
	"context"
	"sort"
	"time"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

// ProjectRepository 项目仓储
type ProjectRepository struct {
	s *Store
}

func NewProjectRepository(s *Store) *ProjectRepository {
	return &ProjectRepository{s: s}
}

func (r *ProjectRepository) Create(_ context.Context, project *entity.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if project.ID == "" {
		project.ID = newID()
	}
	now := time.Now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.StatusChangedAt.IsZero() {
		project.StatusChangedAt = now
	}
	project.UpdatedAt = now
	r.s.projects[project.ID] = clone(project)
	return nil
}

func (r *ProjectRepository) GetByID(_ context.Context, id string) (*entity.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return clone(r.s.projects[id]), nil
}

func (r *ProjectRepository) ListByOwner(_ context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*entity.Project
	for _, p := range r.s.projects {
		if p.OwnerID == ownerID {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.After(matched[j].UpdatedAt) })
	return pageOf(matched, pagination), nil
}

func (r *ProjectRepository) TransitionStatus(_ context.Context, id string, from, to entity.ProjectStatus) error {
	if !entity.CanTransition(from, to) {
		return apperrors.Newf(apperrors.CodeIllegalTransition, "transition %s -> %s is not allowed", from, to)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.projects[id]
	if !ok || p.Status != from {
		return apperrors.Newf(apperrors.CodeIllegalTransition, "project %s is no longer in status %s", id, from)
	}
	now := time.Now()
	p.Status = to
	p.StatusChangedAt = now
	p.UpdatedAt = now
	return nil
}

func (r *ProjectRepository) UpdateAuxStatus(_ context.Context, id, researchStatus, specStatus string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.projects[id]
	if !ok {
		return apperrors.ErrProjectNotFound
	}
	if researchStatus != "" {
		p.ResearchStatus = researchStatus
	}
	if specStatus != "" {
		p.SpecStatus = specStatus
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *ProjectRepository) IncrementDownloadCount(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.projects[id]
	if !ok {
		return apperrors.ErrProjectNotFound
	}
	p.DownloadCount++
	return nil
}

func (r *ProjectRepository) ListByStatusChangedBefore(_ context.Context, status entity.ProjectStatus, before time.Time, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*entity.Project
	for _, p := range r.s.projects {
		if p.Status == status && p.StatusChangedAt.Before(before) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StatusChangedAt.Before(matched[j].StatusChangedAt) })
	return pageOf(matched, pagination), nil
}

func pageOf(all []*entity.Project, pagination repository.Pagination) *repository.PagedResult[*entity.Project] {
	total := int64(len(all))
	start := min(pagination.Offset(), len(all))
	end := min(start+pagination.Limit(), len(all))

	items := make([]*entity.Project, 0, end-start)
	for _, p := range all[start:end] {
		items = append(items, clone(p))
	}
	return repository.NewPagedResult(items, total, pagination)
}
