package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRecordRoundTrip(t *testing.T) {
	rec := NewAssistantRecord(
		TextPart{Type: "text", Text: "let me check", Thought: true},
		TextPart{Type: "text", Text: "editing file"},
		FunctionCallPart{Type: "functionCall", ID: "call-1", Name: "edit_file", Args: map[string]any{"path": "a.go"}},
	)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded ChatRecord
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Parts, 3)
	first, ok := decoded.Parts[0].(TextPart)
	require.True(t, ok)
	assert.True(t, first.Thought)

	call, ok := decoded.Parts[2].(FunctionCallPart)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "edit_file", call.Name)
}

func TestExtractTextSkipsThoughts(t *testing.T) {
	rec := NewAssistantRecord(
		TextPart{Type: "text", Text: "hidden", Thought: true},
		TextPart{Type: "text", Text: "visible"},
	)
	assert.Equal(t, "visible", rec.ExtractText())
}

func TestResponseName(t *testing.T) {
	rec := NewToolResultRecord("call-9", true, []Part{
		TextPart{Type: "text", Text: "done"},
		FunctionResponsePart{Type: "functionResponse", CallID: "call-9", Name: "run_shell"},
	}, nil)
	assert.Equal(t, "run_shell", rec.ResponseName())

	empty := NewToolResultRecord("call-9", false, []Part{TextPart{Type: "text", Text: "x"}}, nil)
	assert.Equal(t, "", empty.ResponseName())
}

func TestUnmarshalSkipsUnknownParts(t *testing.T) {
	raw := `{"role":"assistant","parts":[
		{"type":"text","text":"ok"},
		{"type":"mystery","data":1},
		{"type":"functionResponse","name":"grep","callId":"c1"}
	]}`

	var rec ChatRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	require.Len(t, rec.Parts, 2)
	assert.Equal(t, "grep", rec.ResponseName())
}
