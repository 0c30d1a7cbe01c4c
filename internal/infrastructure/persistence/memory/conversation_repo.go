package memory

import (
	"context"
	"time"

	"spec-forge-api/internal/domain/entity"
)

// ConversationTurnRepository 对话日志仓储
type ConversationTurnRepository struct {
	s *Store
}

func NewConversationTurnRepository(s *Store) *ConversationTurnRepository {
	return &ConversationTurnRepository{s: s}
}

func (r *ConversationTurnRepository) Append(_ context.Context, turn *entity.ConversationTurn) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing := r.s.turns[turn.ProjectID]
	turn.OrderIndex = len(existing) + 1
	if turn.ID == "" {
		turn.ID = newID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	r.s.turns[turn.ProjectID] = append(existing, clone(turn))
	return nil
}

func (r *ConversationTurnRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.ConversationTurn, error) {
	return r.ListAfter(ctx, projectID, 0)
}

func (r *ConversationTurnRepository) ListAfter(_ context.Context, projectID string, afterIndex int) ([]*entity.ConversationTurn, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ConversationTurn
	for _, t := range r.s.turns[projectID] {
		if t.OrderIndex > afterIndex {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (r *ConversationTurnRepository) LatestByRole(_ context.Context, projectID string, role entity.Role) (*entity.ConversationTurn, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	turns := r.s.turns[projectID]
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == role {
			return clone(turns[i]), nil
		}
	}
	return nil, nil
}
