package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStreamEventVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  StreamEventType
	}{
		{"stream start", `{"type":"stream_start","messageId":"m1"}`, StreamEventStreamStart},
		{"delta", `{"type":"delta","messageId":"m1","text":"x"}`, StreamEventDelta},
		{"phase", `{"type":"phase","messageId":"m1","name":"thinking"}`, StreamEventPhase},
		{"thinking complete", `{"type":"thinking_complete","messageId":"m1","durationSeconds":1.5}`, StreamEventThinkingComplete},
		{"reasoning", `{"type":"reasoning","messageId":"m1","text":"plan"}`, StreamEventReasoning},
		{"file operation", `{"type":"file_operation","messageId":"m1","operation":"creating","filePath":"a.ts"}`, StreamEventFileOperation},
		{"tool", `{"type":"tool","event":"start","toolName":"bash","toolUseId":"t1"}`, StreamEventTool},
		{"stream end", `{"type":"stream_end","messageId":"m1"}`, StreamEventStreamEnd},
		{"files updated", `{"type":"files_updated","files":{"a.ts":"x"}}`, StreamEventFilesUpdated},
		{"error", `{"type":"error","message":"boom"}`, StreamEventError},
		{"status", `{"type":"status","message":"working"}`, StreamEventStatus},
		{"response", `{"type":"response","content":"answer"}`, StreamEventResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ClassifyStreamEvent([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.EventType)
		})
	}
}

func TestClassifyPopulatesExactlyOneVariant(t *testing.T) {
	ev, err := ClassifyStreamEvent([]byte(`{"type":"delta","messageId":"m1","text":"hello"}`))
	require.NoError(t, err)

	require.NotNil(t, ev.Delta)
	assert.Equal(t, "m1", ev.Delta.MessageID)
	assert.Equal(t, "hello", ev.Delta.Text)

	assert.Nil(t, ev.StreamStart)
	assert.Nil(t, ev.Phase)
	assert.Nil(t, ev.StreamEnd)
	assert.Nil(t, ev.Response)
}

func TestClassifyUnknownType(t *testing.T) {
	ev, err := ClassifyStreamEvent([]byte(`{"type":"telemetry","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, StreamEventUnknown, ev.EventType)
}

func TestClassifyRejectsEmptyAndMalformed(t *testing.T) {
	_, err := ClassifyStreamEvent(nil)
	assert.Error(t, err)

	_, err = ClassifyStreamEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestGetMessageID(t *testing.T) {
	ev, err := ClassifyStreamEvent([]byte(`{"type":"stream_end","messageId":"m9"}`))
	require.NoError(t, err)
	assert.Equal(t, "m9", ev.GetMessageID())

	ev, err = ClassifyStreamEvent([]byte(`{"type":"status","message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "", ev.GetMessageID())
}

func TestTerminalFileOp(t *testing.T) {
	op, ok := TerminalFileOp(FileOpCreated)
	assert.True(t, ok)
	assert.Equal(t, FileOpCreate, op)

	op, ok = TerminalFileOp(FileOpEdited)
	assert.True(t, ok)
	assert.Equal(t, FileOpEdit, op)

	_, ok = TerminalFileOp(FileOpCreating)
	assert.False(t, ok)
	_, ok = TerminalFileOp("deleted")
	assert.False(t, ok)
}

func TestMarshalPromptFrame(t *testing.T) {
	data, err := MarshalPromptFrame(PromptFrame{Text: "build it", SessionID: "s1", System: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"prompt","text":"build it","sessionId":"s1","system":true}`, string(data))
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseCompleted.Terminal())
	assert.False(t, PhaseBuilding.Terminal())
	assert.False(t, Phase("").Terminal())
}
