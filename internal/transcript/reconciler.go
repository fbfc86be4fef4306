// Package transcript implements the streaming reconciliation engine: it
// consumes the ordered agent event stream and incrementally mutates a list
// of messages, producing exactly one coherent assistant message body per
// request, with idempotent finalization guarded by the completion ledger.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"codeflow/internal/phase"
	"codeflow/internal/types"
)

// MetadataSink receives the metadata snapshot for a message when it reaches
// a terminal state. Implementations must not block event processing; the
// persister dispatches its writes asynchronously.
type MetadataSink interface {
	PersistMetadata(messageID string, snapshot types.MessageMetadata)
}

// StreamError is an agent-reported fault surfaced to the user-facing error
// channel. Rate-limit-class errors get a distinct, more visible treatment.
type StreamError struct {
	Message     string
	Code        string
	RateLimited bool
}

// ToolInvocation tracks one named in-flight tool call. Tool events are
// observability-only; they never affect message content.
type ToolInvocation struct {
	ToolUseID string
	Name      string
	FilePath  string
	StartedAt time.Time
	EndedAt   time.Time
	Done      bool
}

// openStream is the working buffer for the one open assistant message.
type openStream struct {
	messageID string
	index     int // position in the message list
	buffer    strings.Builder
	acc       *Accumulator

	// While the agent is in the reasoning phase the visible content of the
	// open message is the reasoning text. Once sealed (reasoning ->
	// code-writing) the buffer becomes a fresh streaming segment.
	showReasoning   bool
	reasoningSealed bool
}

// Reconciler owns the in-memory message list for one session and applies
// each inbound event to it. All methods must be called from the event
// delivery goroutine: processing is single-threaded and synchronous per
// event, which is what gives deltas their ordering guarantee.
type Reconciler struct {
	// OnChange receives a copy of the full message list after every visible
	// mutation. The open message value is replaced, never mutated in place,
	// so observers can detect the change.
	OnChange func([]types.Message)

	// OnFilesUpdated forwards files_updated events verbatim to the workspace
	// sync collaborator. They are never stored as transcript content.
	OnFilesUpdated func(types.FilesUpdatedEvent)

	// OnStreamError surfaces agent-reported faults to the user.
	OnStreamError func(StreamError)

	messages []types.Message
	records  []types.FileOperationRecord
	tools    map[string]*ToolInvocation

	open    *openStream
	tracker *phase.Tracker
	ledger  *CompletionLedger

	sink MetadataSink
	log  *logrus.Entry
}

// NewReconciler creates a reconciler for one session. sink receives the
// metadata snapshot on every finalization; it may be nil in tests.
func NewReconciler(sink MetadataSink, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		tools:   make(map[string]*ToolInvocation),
		tracker: phase.NewTracker(),
		ledger:  NewCompletionLedger(),
		sink:    sink,
		log:     log,
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Messages returns a copy of the current message list.
func (r *Reconciler) Messages() []types.Message {
	out := make([]types.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// FileRecords returns a copy of the provisional/resolved file-operation
// records in arrival order.
func (r *Reconciler) FileRecords() []types.FileOperationRecord {
	out := make([]types.FileOperationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Tools returns the tool invocations seen so far, keyed by tool use id.
func (r *Reconciler) Tools() map[string]ToolInvocation {
	out := make(map[string]ToolInvocation, len(r.tools))
	for id, t := range r.tools {
		out[id] = *t
	}
	return out
}

// Ledger exposes the completion ledger (the controller consults it when
// deciding whether late events are expected).
func (r *Reconciler) Ledger() *CompletionLedger {
	return r.ledger
}

// CurrentPhase returns the phase of the in-flight message ("" if none).
func (r *Reconciler) CurrentPhase() types.Phase {
	return r.tracker.Current()
}

// PhaseHistory returns the ordered phase transitions of the in-flight
// message.
func (r *Reconciler) PhaseHistory() []phase.Transition {
	return r.tracker.History()
}

// HasOpen reports whether an assistant message is currently open.
func (r *Reconciler) HasOpen() bool {
	return r.open != nil
}

// OpenMessageID returns the id of the open assistant message, or "".
func (r *Reconciler) OpenMessageID() string {
	if r.open == nil {
		return ""
	}
	return r.open.messageID
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// Seed installs an initial message list loaded from the durable store when a
// session is reopened. The last message may already carry metadata.
func (r *Reconciler) Seed(messages []types.Message) {
	r.messages = make([]types.Message, len(messages))
	copy(r.messages, messages)
}

// AppendUserMessage appends a locally created user message (the submitted
// prompt). System-originated prompts are flagged hidden so the rendering
// layer can suppress the originating turn.
func (r *Reconciler) AppendUserMessage(content string, hidden bool) types.Message {
	msg := types.Message{
		ID:        uuid.New().String(),
		Role:      types.RoleUser,
		Content:   content,
		Hidden:    hidden,
		Timestamp: time.Now(),
	}
	r.messages = append(r.messages, msg)
	r.notify()
	return msg
}

// Reset clears all session state: messages, working buffers, file records,
// tool invocations, phase history, and the completion ledger. Called on new
// chat / history reload.
func (r *Reconciler) Reset() {
	r.messages = nil
	r.records = nil
	r.tools = make(map[string]*ToolInvocation)
	r.open = nil
	r.tracker.Reset()
	r.ledger.Reset()
}

// =============================================================================
// EVENT APPLICATION
// =============================================================================

// Apply processes one classified event. Within a single arrival, content
// mutation is applied before phase-transition side effects are evaluated, so
// a phase event always sees the fully updated content for the segment it is
// closing.
func (r *Reconciler) Apply(ev *types.ClassifiedStreamEvent) {
	if ev == nil {
		return
	}

	switch ev.EventType {
	case types.StreamEventStreamStart:
		r.handleStreamStart(ev.StreamStart)
	case types.StreamEventDelta:
		r.handleDelta(ev.Delta)
	case types.StreamEventPhase:
		r.handlePhase(ev.Phase)
	case types.StreamEventThinkingComplete:
		r.handleThinkingComplete(ev.ThinkingComplete)
	case types.StreamEventReasoning:
		r.handleReasoning(ev.Reasoning)
	case types.StreamEventFileOperation:
		r.handleFileOperation(ev.FileOperation)
	case types.StreamEventTool:
		r.handleTool(ev.Tool)
	case types.StreamEventStreamEnd:
		r.handleStreamEnd(ev.StreamEnd)
	case types.StreamEventFilesUpdated:
		r.handleFilesUpdated(ev.FilesUpdated)
	case types.StreamEventError:
		r.handleError(ev.Error)
	case types.StreamEventStatus:
		r.handleStatus(ev.Status)
	case types.StreamEventResponse:
		r.handleResponse(ev.Response)
	default:
		r.log.WithField("event", ev.EventType.String()).Debug("ignoring unknown event")
	}
}

func (r *Reconciler) handleStreamStart(ev *types.StreamStartEvent) {
	if r.open != nil {
		// Should not happen: exactly one message is open per session. Seal
		// the stale one so the transcript stays coherent.
		r.log.WithFields(logrus.Fields{
			"open": r.open.messageID, "new": ev.MessageID,
		}).Warn("stream_start while a message is already open, sealing stale message")
		r.sealVisible(r.open.index)
	}

	msg := types.Message{
		ID:        ev.MessageID,
		Role:      types.RoleAssistant,
		Streaming: true,
		Timestamp: eventTime(ev.Timestamp),
		Metadata:  &types.MessageMetadata{},
	}
	r.messages = append(r.messages, msg)
	r.open = &openStream{
		messageID: ev.MessageID,
		index:     len(r.messages) - 1,
		acc:       NewAccumulator(),
	}
	r.tracker.Reset()
	r.notify()
}

func (r *Reconciler) handleDelta(ev *types.DeltaEvent) {
	if !r.openMatches(ev.MessageID, "delta") {
		return
	}
	r.open.buffer.WriteString(ev.Text)
	r.refreshOpenContent()
}

func (r *Reconciler) handleReasoning(ev *types.ReasoningEvent) {
	if !r.openMatches(ev.MessageID, "reasoning") {
		return
	}
	r.open.acc.AppendReasoning(ev.Text)
	if !r.open.reasoningSealed {
		r.open.showReasoning = true
	}
	r.refreshOpenContent()
}

func (r *Reconciler) handlePhase(ev *types.PhaseEvent) {
	if !r.openMatches(ev.MessageID, "phase") {
		return
	}

	// Side-channel update first: the accumulator must reflect the phase
	// synchronously so a finalization snapshot taken later is current.
	r.open.acc.SetPhase(ev.Name)

	effect := r.tracker.Apply(ev.Name, eventTime(ev.Timestamp))

	if ev.Name == types.PhaseReasoning && !r.open.reasoningSealed {
		r.open.showReasoning = true
		r.refreshOpenContent()
	}

	if effect.SealReasoning {
		// Seal the reasoning sub-message and start a fresh streaming segment
		// for subsequent deltas.
		r.open.reasoningSealed = true
		r.open.showReasoning = false
		r.refreshOpenContent()
		r.appendSystemNote("Planning complete. Writing code...")
	}

	if effect.Completed {
		// completed is terminal for phase purposes: seal the streaming
		// segment and summarize. Finalization proper still waits for
		// stream_end (or error/abort).
		r.sealVisible(r.open.index)
		r.appendSystemNote(phase.CompletionSummary(r.open.acc.FileOperationCount()))
	}
}

func (r *Reconciler) handleThinkingComplete(ev *types.ThinkingCompleteEvent) {
	if !r.openMatches(ev.MessageID, "thinking_complete") {
		return
	}
	r.open.acc.SetThinkingDuration(ev.DurationSeconds)
	r.appendSystemNote(fmt.Sprintf("Thought for %.1f seconds.", ev.DurationSeconds))
}

func (r *Reconciler) handleFileOperation(ev *types.FileOperationEvent) {
	if !r.openMatches(ev.MessageID, "file_operation") {
		return
	}

	now := eventTime(ev.Timestamp)
	switch ev.Operation {
	case types.FileOpCreating, types.FileOpEditing:
		r.records = append(r.records, types.FileOperationRecord{
			Operation: ev.Operation,
			FilePath:  ev.FilePath,
			Timestamp: now,
		})

	case types.FileOpCreated, types.FileOpEdited:
		// Resolve the most recent provisional record for the same path.
		resolved := false
		for i := len(r.records) - 1; i >= 0; i-- {
			if r.records[i].FilePath == ev.FilePath && !r.records[i].Resolved {
				r.records[i].Operation = ev.Operation
				r.records[i].Resolved = true
				r.records[i].Timestamp = now
				resolved = true
				break
			}
		}
		if !resolved {
			// Terminal operation without a provisional counterpart. Accept it
			// as already resolved; the agent is the source of truth.
			r.records = append(r.records, types.FileOperationRecord{
				Operation: ev.Operation,
				FilePath:  ev.FilePath,
				Resolved:  true,
				Timestamp: now,
			})
		}
		if op, ok := types.TerminalFileOp(ev.Operation); ok {
			r.open.acc.AddFileOperation(types.FileOperation{
				Operation: op,
				FilePath:  ev.FilePath,
			})
		}

	default:
		r.log.WithField("operation", ev.Operation).Debug("ignoring unknown file operation")
	}
}

func (r *Reconciler) handleTool(ev *types.ToolEvent) {
	switch ev.Event {
	case types.ToolEventStart:
		r.tools[ev.ToolUseID] = &ToolInvocation{
			ToolUseID: ev.ToolUseID,
			Name:      ev.ToolName,
			FilePath:  ev.FilePath,
			StartedAt: eventTime(ev.Timestamp),
		}
	case types.ToolEventEnd:
		t, ok := r.tools[ev.ToolUseID]
		if !ok {
			r.log.WithField("toolUseId", ev.ToolUseID).Debug("tool end without start")
			return
		}
		t.Done = true
		t.EndedAt = eventTime(ev.Timestamp)
	}
}

func (r *Reconciler) handleStreamEnd(ev *types.StreamEndEvent) {
	if r.ledger.Contains(ev.MessageID) {
		r.log.WithField("message", ev.MessageID).Debug("duplicate stream_end discarded")
		return
	}
	if r.open == nil || r.open.messageID != ev.MessageID {
		r.log.WithField("message", ev.MessageID).Debug("stream_end for unknown message discarded")
		return
	}
	r.open.acc.SetUsage(ev.Usage)
	r.finalizeOpen("")
}

func (r *Reconciler) handleError(ev *types.ErrorEvent) {
	if r.open != nil && !r.ledger.Contains(r.open.messageID) {
		// Seal with an inline error marker and persist whatever accumulated;
		// partial progress is never dropped.
		r.finalizeOpen("\n\n[error] " + ev.Message)
	}
	if r.OnStreamError != nil {
		r.OnStreamError(StreamError{
			Message:     ev.Message,
			Code:        ev.Code,
			RateLimited: ev.Code == types.ErrorCodeRateLimit,
		})
	}
}

func (r *Reconciler) handleResponse(ev *types.ResponseEvent) {
	// Legacy completion path: only meaningful when no streaming message is
	// open for this exchange and the id has not already been finalized.
	if r.open != nil {
		r.log.Debug("legacy response ignored, streaming message open")
		return
	}
	if ev.MessageID != "" && r.ledger.Contains(ev.MessageID) {
		r.log.WithField("message", ev.MessageID).Debug("legacy response for finalized message discarded")
		return
	}

	id := ev.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	r.messages = append(r.messages, types.Message{
		ID:        id,
		Role:      types.RoleAssistant,
		Content:   ev.Content,
		Timestamp: eventTime(ev.Timestamp),
	})
	if ev.MessageID != "" {
		r.ledger.Record(ev.MessageID)
	}
	r.notify()
}

func (r *Reconciler) handleStatus(ev *types.StatusEvent) {
	r.appendSystemNote(ev.Message)
}

func (r *Reconciler) handleFilesUpdated(ev *types.FilesUpdatedEvent) {
	if r.OnFilesUpdated != nil {
		r.OnFilesUpdated(*ev)
	}
}

// =============================================================================
// FINALIZATION
// =============================================================================

// Abort finalizes the open message through the same snapshot path used by
// stream_end, without waiting for further events. Returns the finalized
// message id, or "" if nothing was open. Late events for the id are
// discarded by the ledger check.
func (r *Reconciler) Abort() string {
	if r.open == nil {
		return ""
	}
	if r.ledger.Contains(r.open.messageID) {
		id := r.open.messageID
		r.open = nil
		return id
	}
	return r.finalizeOpen("")
}

// finalizeOpen seals the open message, backfills its metadata from the
// accumulator snapshot, records the id in the completion ledger, and hands
// the snapshot to the metadata sink. The ledger insertion is the last
// in-memory step; persistence is the sink's (asynchronous) concern.
func (r *Reconciler) finalizeOpen(marker string) string {
	open := r.open
	id := open.messageID
	snap := open.acc.Snapshot()

	msg := r.messages[open.index]
	content := r.displayContent(open)
	if marker != "" {
		content += marker
	}
	msg.Content = content
	msg.Streaming = false
	meta := snap
	msg.Metadata = &meta
	r.messages[open.index] = msg

	r.ledger.Record(id)
	r.open = nil
	r.notify()

	if r.sink != nil {
		r.sink.PersistMetadata(id, snap)
	}
	return id
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// openMatches reports whether the event belongs to the open message.
// Mismatches are protocol faults and are silently discarded by design: a
// late event for a finalized id is expected after abort or duplicate
// completion.
func (r *Reconciler) openMatches(messageID, kind string) bool {
	if r.open != nil && r.open.messageID == messageID {
		return true
	}
	if r.ledger.Contains(messageID) {
		r.log.WithFields(logrus.Fields{"message": messageID, "event": kind}).
			Debug("late event for finalized message discarded")
	} else {
		r.log.WithFields(logrus.Fields{"message": messageID, "event": kind}).
			Debug("event for unknown message discarded")
	}
	return false
}

// displayContent computes the visible content of the open message: the
// reasoning text while the reasoning segment is showing, the streaming
// buffer otherwise.
func (r *Reconciler) displayContent(open *openStream) string {
	if open.showReasoning {
		return open.acc.ReasoningText()
	}
	return open.buffer.String()
}

// refreshOpenContent replaces the open message value with an updated copy.
func (r *Reconciler) refreshOpenContent() {
	msg := r.messages[r.open.index]
	msg.Content = r.displayContent(r.open)
	r.messages[r.open.index] = msg
	r.notify()
}

// sealVisible marks the message at index as no longer streaming.
func (r *Reconciler) sealVisible(index int) {
	msg := r.messages[index]
	msg.Streaming = false
	r.messages[index] = msg
	r.notify()
}

func (r *Reconciler) appendSystemNote(content string) {
	r.messages = append(r.messages, types.Message{
		ID:        uuid.New().String(),
		Role:      types.RoleSystem,
		Content:   content,
		Timestamp: time.Now(),
	})
	r.notify()
}

func (r *Reconciler) notify() {
	if r.OnChange != nil {
		r.OnChange(r.Messages())
	}
}

// eventTime converts a wire timestamp (Unix millis) to time.Time, falling
// back to the local clock when the agent omitted it.
func eventTime(millis int64) time.Time {
	if millis > 0 {
		return time.UnixMilli(millis)
	}
	return time.Now()
}
