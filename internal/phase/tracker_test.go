package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeflow/internal/types"
)

func TestTrackerRecordsHistoryWithDurations(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr.Apply(types.PhaseThinking, t0)
	tr.Apply(types.PhaseReasoning, t0.Add(2*time.Second))
	tr.Apply(types.PhaseCodeWriting, t0.Add(5*time.Second))

	assert.Equal(t, types.PhaseCodeWriting, tr.Current())

	history := tr.History()
	require.Len(t, history, 3)
	assert.Equal(t, types.PhaseThinking, history[0].Phase)
	assert.Equal(t, 2*time.Second, history[0].Duration)
	assert.Equal(t, 3*time.Second, history[1].Duration)
	assert.Equal(t, time.Duration(0), history[2].Duration)
}

func TestSealReasoningEffect(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Apply(types.PhaseReasoning, now)
	effect := tr.Apply(types.PhaseCodeWriting, now)

	assert.True(t, effect.SealReasoning)
	assert.False(t, effect.Completed)
	assert.Equal(t, types.PhaseReasoning, effect.Previous)
	assert.Equal(t, types.PhaseCodeWriting, effect.Current)
}

func TestSealReasoningOnlyFromReasoning(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Apply(types.PhaseThinking, now)
	effect := tr.Apply(types.PhaseCodeWriting, now)

	assert.False(t, effect.SealReasoning)
}

func TestCompletedEffectFromAnyPhase(t *testing.T) {
	for _, prev := range []types.Phase{types.PhaseThinking, types.PhaseBuilding, ""} {
		tr := NewTracker()
		now := time.Now()
		if prev != "" {
			tr.Apply(prev, now)
		}
		effect := tr.Apply(types.PhaseCompleted, now)
		assert.True(t, effect.Completed, "previous phase %q", prev)
	}
}

func TestOutOfOrderAndRepeatedPhasesAccepted(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.Apply(types.PhaseCompleted, now)
	tr.Apply(types.PhaseBuilding, now)
	tr.Apply(types.PhaseBuilding, now)

	assert.Equal(t, types.PhaseBuilding, tr.Current())
	assert.Len(t, tr.History(), 3)
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.Apply(types.PhaseThinking, time.Now())
	tr.Reset()

	assert.Equal(t, types.Phase(""), tr.Current())
	assert.Empty(t, tr.History())
}

func TestCompletionSummary(t *testing.T) {
	assert.Equal(t, "Generation complete.", CompletionSummary(0))
	assert.Equal(t, "Generation complete. 1 file changed.", CompletionSummary(1))
	assert.Equal(t, "Generation complete. 7 files changed.", CompletionSummary(7))
}
