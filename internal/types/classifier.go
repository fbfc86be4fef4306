// Event classification uses the discriminated-union pattern: the `type`
// field in each JSON frame acts as the tag that determines which concrete Go
// type is used for full parsing. Adding a new event kind means adding a
// variant struct, a pointer field on ClassifiedStreamEvent, and a case in
// ClassifyStreamEvent.
package types

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// STREAM EVENT CLASSIFIER
// =============================================================================

// StreamEventType represents the classified type of a streaming event.
type StreamEventType int

const (
	StreamEventUnknown StreamEventType = iota
	StreamEventStreamStart
	StreamEventDelta
	StreamEventPhase
	StreamEventThinkingComplete
	StreamEventReasoning
	StreamEventFileOperation
	StreamEventTool
	StreamEventStreamEnd
	StreamEventFilesUpdated
	StreamEventError
	StreamEventStatus
	StreamEventResponse
)

// String returns a human-readable name for the event type.
func (t StreamEventType) String() string {
	switch t {
	case StreamEventStreamStart:
		return EventTypeStreamStart
	case StreamEventDelta:
		return EventTypeDelta
	case StreamEventPhase:
		return EventTypePhase
	case StreamEventThinkingComplete:
		return EventTypeThinkingComplete
	case StreamEventReasoning:
		return EventTypeReasoning
	case StreamEventFileOperation:
		return EventTypeFileOperation
	case StreamEventTool:
		return EventTypeTool
	case StreamEventStreamEnd:
		return EventTypeStreamEnd
	case StreamEventFilesUpdated:
		return EventTypeFilesUpdated
	case StreamEventError:
		return EventTypeError
	case StreamEventStatus:
		return EventTypeStatus
	case StreamEventResponse:
		return EventTypeResponse
	default:
		return "unknown"
	}
}

// ClassifiedStreamEvent holds the parsed streaming event with its classified
// type. Only ONE of the event pointers is non-nil based on EventType.
type ClassifiedStreamEvent struct {
	EventType StreamEventType
	Raw       json.RawMessage // preserved for re-parsing if needed

	StreamStart      *StreamStartEvent
	Delta            *DeltaEvent
	Phase            *PhaseEvent
	ThinkingComplete *ThinkingCompleteEvent
	Reasoning        *ReasoningEvent
	FileOperation    *FileOperationEvent
	Tool             *ToolEvent
	StreamEnd        *StreamEndEvent
	FilesUpdated     *FilesUpdatedEvent
	Error            *ErrorEvent
	Status           *StatusEvent
	Response         *ResponseEvent
}

// ClassifyStreamEvent parses one JSON frame and returns a classified event.
// It uses two-pass parsing: first extracting the discriminator, then parsing
// into the correct concrete type.
func ClassifyStreamEvent(data []byte) (*ClassifiedStreamEvent, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	// First pass: extract discriminator
	var discriminator struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &discriminator); err != nil {
		return nil, fmt.Errorf("failed to parse discriminator: %w", err)
	}

	result := &ClassifiedStreamEvent{
		Raw: json.RawMessage(data),
	}

	// Second pass: parse into correct type based on discriminator
	switch discriminator.Type {
	case EventTypeStreamStart:
		result.EventType = StreamEventStreamStart
		var event StreamStartEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse stream_start event: %w", err)
		}
		result.StreamStart = &event

	case EventTypeDelta:
		result.EventType = StreamEventDelta
		var event DeltaEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse delta event: %w", err)
		}
		result.Delta = &event

	case EventTypePhase:
		result.EventType = StreamEventPhase
		var event PhaseEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse phase event: %w", err)
		}
		result.Phase = &event

	case EventTypeThinkingComplete:
		result.EventType = StreamEventThinkingComplete
		var event ThinkingCompleteEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse thinking_complete event: %w", err)
		}
		result.ThinkingComplete = &event

	case EventTypeReasoning:
		result.EventType = StreamEventReasoning
		var event ReasoningEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse reasoning event: %w", err)
		}
		result.Reasoning = &event

	case EventTypeFileOperation:
		result.EventType = StreamEventFileOperation
		var event FileOperationEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse file_operation event: %w", err)
		}
		result.FileOperation = &event

	case EventTypeTool:
		result.EventType = StreamEventTool
		var event ToolEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse tool event: %w", err)
		}
		result.Tool = &event

	case EventTypeStreamEnd:
		result.EventType = StreamEventStreamEnd
		var event StreamEndEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse stream_end event: %w", err)
		}
		result.StreamEnd = &event

	case EventTypeFilesUpdated:
		result.EventType = StreamEventFilesUpdated
		var event FilesUpdatedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse files_updated event: %w", err)
		}
		result.FilesUpdated = &event

	case EventTypeError:
		result.EventType = StreamEventError
		var event ErrorEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse error event: %w", err)
		}
		result.Error = &event

	case EventTypeStatus:
		result.EventType = StreamEventStatus
		var event StatusEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse status event: %w", err)
		}
		result.Status = &event

	case EventTypeResponse:
		result.EventType = StreamEventResponse
		var event ResponseEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to parse response event: %w", err)
		}
		result.Response = &event

	default:
		result.EventType = StreamEventUnknown
	}

	return result, nil
}

// GetMessageID extracts the message correlation id from any classified event.
// Returns "" for events that carry none (status, files_updated, some errors).
func (c *ClassifiedStreamEvent) GetMessageID() string {
	switch c.EventType {
	case StreamEventStreamStart:
		if c.StreamStart != nil {
			return c.StreamStart.MessageID
		}
	case StreamEventDelta:
		if c.Delta != nil {
			return c.Delta.MessageID
		}
	case StreamEventPhase:
		if c.Phase != nil {
			return c.Phase.MessageID
		}
	case StreamEventThinkingComplete:
		if c.ThinkingComplete != nil {
			return c.ThinkingComplete.MessageID
		}
	case StreamEventReasoning:
		if c.Reasoning != nil {
			return c.Reasoning.MessageID
		}
	case StreamEventFileOperation:
		if c.FileOperation != nil {
			return c.FileOperation.MessageID
		}
	case StreamEventStreamEnd:
		if c.StreamEnd != nil {
			return c.StreamEnd.MessageID
		}
	case StreamEventError:
		if c.Error != nil {
			return c.Error.MessageID
		}
	case StreamEventResponse:
		if c.Response != nil {
			return c.Response.MessageID
		}
	}
	return ""
}
