// Package phase tracks the agent pipeline phase of the in-flight assistant
// message and the history of phase transitions with timestamps.
package phase

import (
	"fmt"
	"time"

	"codeflow/internal/types"
)

// Transition is one entry in the phase history. Duration is filled in when
// the next phase arrives and closes this one.
type Transition struct {
	Phase     types.Phase   `json:"phase"`
	EnteredAt time.Time     `json:"enteredAt"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Effect describes the declarative side effects of one phase transition,
// keyed by the (previous -> next) pair. The transcript reconciler consumes
// it; the tracker itself only records.
type Effect struct {
	Previous types.Phase
	Current  types.Phase

	// SealReasoning is set on reasoning -> code-writing: the open reasoning
	// segment is marked non-streaming and a transition note is inserted.
	SealReasoning bool

	// Completed is set on any transition into the completed phase: the
	// streaming segment is sealed and a summary is computed.
	Completed bool
}

// Tracker maintains the current phase and ordered transition history for one
// assistant message. No transition is rejected; out-of-order or repeated
// phase names are accepted and recorded as-is - the agent is the source of
// truth for its own pipeline.
type Tracker struct {
	current types.Phase
	history []Transition
}

// NewTracker returns an empty tracker with no current phase.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Current returns the current phase ("" before the first transition).
func (t *Tracker) Current() types.Phase {
	return t.current
}

// History returns a copy of the ordered transition list.
func (t *Tracker) History() []Transition {
	out := make([]Transition, len(t.history))
	copy(out, t.history)
	return out
}

// Apply records entry into a new phase at the given instant. The previous
// phase's duration is computed as now - enteredAt before the new entry is
// appended.
func (t *Tracker) Apply(p types.Phase, now time.Time) Effect {
	prev := t.current

	// Close out the previous transition's duration.
	if n := len(t.history); n > 0 {
		t.history[n-1].Duration = now.Sub(t.history[n-1].EnteredAt)
	}

	t.history = append(t.history, Transition{Phase: p, EnteredAt: now})
	t.current = p

	return Effect{
		Previous:      prev,
		Current:       p,
		SealReasoning: prev == types.PhaseReasoning && p == types.PhaseCodeWriting,
		Completed:     p == types.PhaseCompleted,
	}
}

// Reset clears the tracker for a new message.
func (t *Tracker) Reset() {
	t.current = ""
	t.history = nil
}

// CompletionSummary renders the human-readable note inserted when the agent
// reports completion, using the accumulated file-operation count.
func CompletionSummary(fileOps int) string {
	switch fileOps {
	case 0:
		return "Generation complete."
	case 1:
		return "Generation complete. 1 file changed."
	default:
		return fmt.Sprintf("Generation complete. %d files changed.", fileOps)
	}
}
