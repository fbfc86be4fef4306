// Package types provides the streaming event type definitions for the
// codeflow agent protocol. Each event on the wire is a JSON object whose
// `type` field discriminates the variant; every variant that relates to an
// assistant message carries the backend-issued `messageId` correlation key.
package types

import "encoding/json"

// =============================================================================
// EVENT TYPE DISCRIMINATORS
// =============================================================================

const (
	EventTypeStreamStart      = "stream_start"
	EventTypeDelta            = "delta"
	EventTypePhase            = "phase"
	EventTypeThinkingComplete = "thinking_complete"
	EventTypeReasoning        = "reasoning"
	EventTypeFileOperation    = "file_operation"
	EventTypeTool             = "tool"
	EventTypeStreamEnd        = "stream_end"
	EventTypeFilesUpdated     = "files_updated"
	EventTypeError            = "error"
	EventTypeStatus           = "status"
	EventTypeResponse         = "response"
)

// =============================================================================
// STREAM LIFECYCLE EVENTS
// =============================================================================

// StreamStartEvent opens a new assistant message. The MessageID it carries is
// the sole correlation key for every subsequent event about that message.
type StreamStartEvent struct {
	Type      string `json:"type"` // "stream_start"
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp,omitempty"` // Unix millis
}

// DeltaEvent carries a raw content fragment to append to the open message.
type DeltaEvent struct {
	Type      string `json:"type"` // "delta"
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// StreamEndEvent is terminal for a message. Usage is optional - older agents
// omit it.
type StreamEndEvent struct {
	Type      string      `json:"type"` // "stream_end"
	MessageID string      `json:"messageId"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// =============================================================================
// PHASE AND REASONING EVENTS
// =============================================================================

// PhaseEvent announces that the agent entered a new pipeline phase.
type PhaseEvent struct {
	Type      string `json:"type"` // "phase"
	MessageID string `json:"messageId"`
	Name      Phase  `json:"name"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ThinkingCompleteEvent reports how long the agent spent in its thinking
// placeholder before producing output.
type ThinkingCompleteEvent struct {
	Type            string  `json:"type"` // "thinking_complete"
	MessageID       string  `json:"messageId"`
	DurationSeconds float64 `json:"durationSeconds"`
	Timestamp       int64   `json:"timestamp,omitempty"`
}

// ReasoningEvent carries a fragment of plan/explanation text. It is appended
// like a delta but tagged as reasoning rather than message content.
type ReasoningEvent struct {
	Type      string `json:"type"` // "reasoning"
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// =============================================================================
// FILE AND TOOL EVENTS
// =============================================================================

// File operation names as they appear on the wire. creating/editing are
// provisional; created/edited are their terminal counterparts for the same
// file path.
const (
	FileOpCreating = "creating"
	FileOpEditing  = "editing"
	FileOpCreated  = "created"
	FileOpEdited   = "edited"
)

// Normalized operation names stored in message metadata (terminal only).
const (
	FileOpCreate = "create"
	FileOpEdit   = "edit"
)

// FileOperationEvent reports that the agent is touching (or finished
// touching) a file in the generated project.
type FileOperationEvent struct {
	Type      string `json:"type"` // "file_operation"
	MessageID string `json:"messageId"`
	Operation string `json:"operation"` // creating, editing, created, edited
	FilePath  string `json:"filePath"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TerminalFileOp maps a terminal wire operation to its normalized metadata
// form. Returns false for provisional operations.
func TerminalFileOp(op string) (string, bool) {
	switch op {
	case FileOpCreated:
		return FileOpCreate, true
	case FileOpEdited:
		return FileOpEdit, true
	default:
		return "", false
	}
}

// Tool event sub-kinds.
const (
	ToolEventStart = "start"
	ToolEventEnd   = "end"
)

// ToolEvent marks the start or end of a named tool invocation. Tool events
// are observability-only and never affect message content.
type ToolEvent struct {
	Type      string `json:"type"`  // "tool"
	Event     string `json:"event"` // "start" or "end"
	ToolName  string `json:"toolName"`
	ToolUseID string `json:"toolUseId"`
	FilePath  string `json:"filePath,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// =============================================================================
// OUT-OF-BAND EVENTS
// =============================================================================

// FilesUpdatedEvent carries the full generated file tree. It is forwarded to
// the workspace sync collaborator and never stored as transcript content.
type FilesUpdatedEvent struct {
	Type      string            `json:"type"` // "files_updated"
	Files     map[string]string `json:"files"`
	SessionID string            `json:"sessionId,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
}

// ErrorEvent is an agent-reported fault. It seals the current message.
type ErrorEvent struct {
	Type      string         `json:"type"` // "error"
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// Error codes the client treats specially.
const (
	ErrorCodeRateLimit = "rate_limit"
)

// StatusEvent is a transient progress note with no correlation id.
type StatusEvent struct {
	Type      string `json:"type"` // "status"
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ResponseEvent is the legacy completion path: a full assistant response in
// one event, emitted by agents that never stream deltas. It may also arrive
// redundantly after a delta/stream_end pair and must then be discarded.
type ResponseEvent struct {
	Type      string `json:"type"` // "response"
	MessageID string `json:"messageId,omitempty"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// =============================================================================
// PROMPT SUBMISSION (client -> agent)
// =============================================================================

// PromptFrame is the outbound frame submitting a new request on the open
// connection. System-originated prompts (auto-fix and similar) are flagged so
// the rendering layer can hide the originating user turn.
type PromptFrame struct {
	Type      string `json:"type"` // "prompt"
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
	System    bool   `json:"system,omitempty"`
}

// MarshalPromptFrame encodes a prompt frame for the wire.
func MarshalPromptFrame(f PromptFrame) ([]byte, error) {
	f.Type = "prompt"
	return json.Marshal(f)
}
