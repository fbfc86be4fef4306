package types

import "time"

// =============================================================================
// PHASES
// =============================================================================

// Phase is a coarse-grained stage of the agent's pipeline.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseThinking    Phase = "thinking"
	PhaseReasoning   Phase = "reasoning"
	PhaseCodeWriting Phase = "code-writing"
	PhaseBuilding    Phase = "building"
	PhaseCompleted   Phase = "completed"
)

// Terminal reports whether the phase is final for a message. Once completed
// is reached no further phase changes for that message are meaningful.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted
}

// =============================================================================
// MESSAGE MODEL
// =============================================================================

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// TokenUsage holds per-message token counts reported by the agent backend.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// FileOperation is one normalized, terminal file operation recorded in
// assistant message metadata ("create" or "edit" plus the path).
type FileOperation struct {
	Operation string `json:"operation"`
	FilePath  string `json:"filePath"`
}

// MessageMetadata is the side-channel data accumulated for an assistant
// message and persisted to the durable store at finalization.
type MessageMetadata struct {
	ReasoningText    string          `json:"reasoningText,omitempty"`
	ThinkingDuration float64         `json:"thinkingDuration,omitempty"` // seconds
	FileOperations   []FileOperation `json:"fileOperations,omitempty"`
	TokenUsage       *TokenUsage     `json:"tokenUsage,omitempty"`
	Phase            Phase           `json:"phase,omitempty"`
}

// Message is one transcript entry. Assistant messages use the backend-issued
// stream id as ID; user and system messages get locally generated UUIDs.
// Metadata is non-nil only for assistant messages.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Streaming bool             `json:"streaming,omitempty"` // still receiving mutations
	Hidden    bool             `json:"hidden,omitempty"`    // system-originated prompt turn
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// FileOperationRecord is a provisional or resolved file-operation indicator
// shown alongside the transcript. The effective state for a path is its most
// recent record; a later terminal record supersedes an earlier provisional
// one for the same path.
type FileOperationRecord struct {
	Operation string    `json:"operation"` // creating, editing, created, edited
	FilePath  string    `json:"filePath"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
}
