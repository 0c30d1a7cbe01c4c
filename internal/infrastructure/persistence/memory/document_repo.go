package memory

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
	apperrors "spec-forge-api/pkg/errors"
)

// GeneratedDocumentRepository 规格文档仓储
type GeneratedDocumentRepository struct {
	s *Store
}

func NewGeneratedDocumentRepository(s *Store) *GeneratedDocumentRepository {
	return &GeneratedDocumentRepository{s: s}
}

func (r *GeneratedDocumentRepository) Save(_ context.Context, doc *entity.GeneratedDocument) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.documents[doc.ProjectID]; ok {
		if err := existing.EnsureMutable(); err != nil {
			return err
		}
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	if doc.ID == "" {
		doc.ID = newID()
	}
	doc.UpdatedAt = time.Now()
	r.s.documents[doc.ProjectID] = clone(doc)
	return nil
}

func (r *GeneratedDocumentRepository) GetByProject(_ context.Context, projectID string) (*entity.GeneratedDocument, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return clone(r.s.documents[projectID]), nil
}

func (r *GeneratedDocumentRepository) find(id string) *entity.GeneratedDocument {
	for _, d := range r.s.documents {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (r *GeneratedDocumentRepository) UpdateStatus(_ context.Context, id string, status entity.DocumentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.find(id)
	if d == nil {
		return apperrors.ErrDocumentNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now()
	return nil
}

func (r *GeneratedDocumentRepository) Lock(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d := r.find(id)
	if d == nil {
		return apperrors.ErrDocumentNotFound
	}
	d.Locked = true
	return nil
}

// DownloadEventRepository 下载记录仓储
type DownloadEventRepository struct {
	s *Store
}

func NewDownloadEventRepository(s *Store) *DownloadEventRepository {
	return &DownloadEventRepository{s: s}
}

func (r *DownloadEventRepository) Create(_ context.Context, event *entity.DownloadEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == "" {
		event.ID = newID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.s.downloads = append(r.s.downloads, clone(event))
	return nil
}

func (r *DownloadEventRepository) CountByProject(_ context.Context, projectID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var n int64
	for _, e := range r.s.downloads {
		if e.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

// LLMUsageEventRepository 模型用量仓储
type LLMUsageEventRepository struct {
	s *Store
}

func NewLLMUsageEventRepository(s *Store) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{s: s}
}

func (r *LLMUsageEventRepository) Create(_ context.Context, event *entity.LLMUsageEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == "" {
		event.ID = newID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.s.usage = append(r.s.usage, clone(event))
	return nil
}

func (r *LLMUsageEventRepository) GetTokenUsage(_ context.Context, ownerID string, startInclusive, endExclusive time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var total int64
	for _, e := range r.s.usage {
		if e.OwnerID == ownerID && !e.CreatedAt.Before(startInclusive) && e.CreatedAt.Before(endExclusive) {
			total += int64(e.TotalTokens())
		}
	}
	return total, nil
}
