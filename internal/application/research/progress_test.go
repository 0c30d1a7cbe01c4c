package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"spec-forge-api/internal/domain/entity"
)

func TestProgressFromArtifact(t *testing.T) {
	assert.Nil(t, ProgressFromArtifact(nil))

	a := entity.NewResearchArtifact("p1")
	ev := ProgressFromArtifact(a)
	assert.Equal(t, ProgressRunning, ev.Status)
	assert.Equal(t, 1, ev.PhaseNumber)
	assert.Equal(t, 0, ev.Percent)

	a.Status = entity.ResearchStatusPhase2
	ev = ProgressFromArtifact(a)
	assert.Equal(t, ProgressCompleted, ev.Status)
	assert.Equal(t, 2, ev.PhaseNumber)
	assert.Equal(t, 50, ev.Percent)

	a.MarkFailed(3, "provider down")
	ev = ProgressFromArtifact(a)
	assert.Equal(t, ProgressFailed, ev.Status)
	assert.Equal(t, 3, ev.PhaseNumber)
	assert.Equal(t, 50, ev.Percent)
	assert.Equal(t, "provider down", ev.Message)

	_, err := a.Skip()
	assert.NoError(t, err)
	ev = ProgressFromArtifact(a)
	assert.Equal(t, ProgressSkipped, ev.Status)
	assert.Equal(t, 75, ev.Percent)
}
