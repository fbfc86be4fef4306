package transcript

import (
	"strings"

	"codeflow/internal/types"
)

// Accumulator is the mutable metadata side-channel for the open assistant
// message. It is updated synchronously on every partial event and read only
// at finalization time, so completion handlers always see the latest state
// no matter how many events intervened since the prompt was sent.
type Accumulator struct {
	reasoning        strings.Builder
	thinkingDuration float64
	fileOps          []types.FileOperation
	usage            *types.TokenUsage
	phase            types.Phase
}

// NewAccumulator returns an empty accumulator for a freshly opened message.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// AppendReasoning appends a reasoning text fragment.
func (a *Accumulator) AppendReasoning(text string) {
	a.reasoning.WriteString(text)
}

// ReasoningText returns the reasoning accumulated so far.
func (a *Accumulator) ReasoningText() string {
	return a.reasoning.String()
}

// SetThinkingDuration records the reported thinking time in seconds.
func (a *Accumulator) SetThinkingDuration(seconds float64) {
	a.thinkingDuration = seconds
}

// AddFileOperation appends a normalized terminal file operation.
func (a *Accumulator) AddFileOperation(op types.FileOperation) {
	a.fileOps = append(a.fileOps, op)
}

// FileOperationCount returns the number of terminal file operations so far.
func (a *Accumulator) FileOperationCount() int {
	return len(a.fileOps)
}

// SetUsage records the token usage from stream_end.
func (a *Accumulator) SetUsage(u *types.TokenUsage) {
	if u != nil {
		cp := *u
		a.usage = &cp
	}
}

// SetPhase records the most recent phase.
func (a *Accumulator) SetPhase(p types.Phase) {
	a.phase = p
}

// Snapshot returns a copy of the accumulated metadata. The copy is safe to
// hand to asynchronous persistence without further synchronization.
func (a *Accumulator) Snapshot() types.MessageMetadata {
	meta := types.MessageMetadata{
		ReasoningText:    a.reasoning.String(),
		ThinkingDuration: a.thinkingDuration,
		Phase:            a.phase,
	}
	if len(a.fileOps) > 0 {
		meta.FileOperations = make([]types.FileOperation, len(a.fileOps))
		copy(meta.FileOperations, a.fileOps)
	}
	if a.usage != nil {
		cp := *a.usage
		meta.TokenUsage = &cp
	}
	return meta
}
