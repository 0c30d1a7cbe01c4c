package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "spec-forge-api/pkg/errors"
)

var allStatuses = []ProjectStatus{
	ProjectStatusChatting, ProjectStatusResearching, ProjectStatusGenerating,
	ProjectStatusReview, ProjectStatusComplete, ProjectStatusArchived,
}

var allEvents = []ProjectEvent{
	ProjectEventReadyForResearch, ProjectEventResearchComplete, ProjectEventSpecAccepted,
	ProjectEventApprove, ProjectEventRequestChanges, ProjectEventArchive,
}

func TestNextStatusFollowsTable(t *testing.T) {
	tests := []struct {
		from  ProjectStatus
		event ProjectEvent
		want  ProjectStatus
	}{
		{ProjectStatusChatting, ProjectEventReadyForResearch, ProjectStatusResearching},
		{ProjectStatusResearching, ProjectEventResearchComplete, ProjectStatusGenerating},
		{ProjectStatusGenerating, ProjectEventSpecAccepted, ProjectStatusReview},
		{ProjectStatusReview, ProjectEventApprove, ProjectStatusComplete},
		{ProjectStatusReview, ProjectEventRequestChanges, ProjectStatusChatting},
		{ProjectStatusComplete, ProjectEventArchive, ProjectStatusArchived},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, CanTransition(tt.from, tt.want))
		})
	}
}

func TestEveryOtherCombinationIsIllegal(t *testing.T) {
	legal := 0
	for _, from := range allStatuses {
		for _, ev := range allEvents {
			_, err := NextStatus(from, ev)
			if err == nil {
				legal++
				continue
			}
			assert.True(t, errors.Is(err, apperrors.ErrIllegalTransition), "%s/%s", from, ev)
		}
	}
	assert.Equal(t, 6, legal)

	assert.False(t, CanTransition(ProjectStatusReview, ProjectStatusArchived))
	assert.False(t, CanTransition(ProjectStatusComplete, ProjectStatusComplete))
	assert.False(t, CanTransition(ProjectStatusArchived, ProjectStatusChatting))
}

func TestNewVersionRequiresComplete(t *testing.T) {
	p := NewProject("owner-1", "Pet sitter marketplace", "")
	p.ID = "p-1"

	_, err := p.NewVersion()
	assert.True(t, errors.Is(err, apperrors.ErrIllegalTransition))

	p.Status = ProjectStatusComplete
	p.Version = 2
	v, err := p.NewVersion()
	require.NoError(t, err)
	assert.Equal(t, ProjectStatusReview, v.Status)
	assert.Equal(t, 3, v.Version)
	require.NotNil(t, v.ParentProjectID)
	assert.Equal(t, "p-1", *v.ParentProjectID)
	assert.Equal(t, "owner-1", v.OwnerID)
}

func TestTimeInStatus(t *testing.T) {
	now := time.Now()
	p := &Project{CreatedAt: now.Add(-3 * time.Hour), StatusChangedAt: now.Add(-time.Hour)}
	assert.Equal(t, time.Hour, p.TimeInStatus(now))

	p.StatusChangedAt = time.Time{}
	assert.Equal(t, 3*time.Hour, p.TimeInStatus(now))
}
