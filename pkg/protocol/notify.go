package protocol

import (
	"encoding/json"
	"fmt"
)

// UpdateKind tags a session update with what it describes.
type UpdateKind string

// Session update kinds delivered on the session/update channel.
const (
	UpdateUserMessageChunk  UpdateKind = "user_message_chunk"
	UpdateAgentMessageChunk UpdateKind = "agent_message_chunk"
	UpdateAgentThoughtChunk UpdateKind = "agent_thought_chunk"
	UpdateToolCall          UpdateKind = "tool_call"
	UpdateToolCallUpdate    UpdateKind = "tool_call_update"
	UpdatePlan              UpdateKind = "plan"
	UpdateCurrentMode       UpdateKind = "current_mode_update"
)

// SessionUpdate is one session/update notification payload.
type SessionUpdate struct {
	SessionID string     `json:"sessionId"`
	Kind      UpdateKind `json:"sessionUpdate"`

	// Chunk content for *_chunk kinds.
	Content *ContentChunk `json:"content,omitempty"`

	// Usage metadata piggybacked on message chunks.
	Usage *UsageMeta `json:"usage,omitempty"`

	// tool_call / tool_call_update fields.
	ToolCallID string         `json:"toolCallId,omitempty"`
	Title      string         `json:"title,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Status     string         `json:"status,omitempty"`
	RawInput   map[string]any `json:"rawInput,omitempty"`

	// plan entries.
	Entries []PlanEntry `json:"entries,omitempty"`

	// current_mode_update.
	CurrentModeID string `json:"currentModeId,omitempty"`
}

// ContentChunk carries a fragment of streamed message content.
type ContentChunk struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UsageMeta is token usage attached to message-chunk updates.
type UsageMeta struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
	TotalTokens  int `json:"totalTokens,omitempty"`
}

// PlanEntry is one step of an agent plan update.
type PlanEntry struct {
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

// DecodeSessionUpdate parses the params of a session/update notification.
func DecodeSessionUpdate(params json.RawMessage) (*SessionUpdate, error) {
	var wrapper struct {
		SessionID string          `json:"sessionId"`
		Update    json.RawMessage `json:"update"`
	}
	if err := json.Unmarshal(params, &wrapper); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "malformed session/update params", Cause: err},
			Line:        string(params),
		}
	}
	if len(wrapper.Update) == 0 {
		return nil, &ParseError{
			EngineError: EngineError{Message: "session/update missing update body"},
			Line:        string(params),
		}
	}
	var update SessionUpdate
	if err := json.Unmarshal(wrapper.Update, &update); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "malformed session update body", Cause: err},
			Line:        string(wrapper.Update),
		}
	}
	if update.Kind == "" {
		return nil, &ParseError{
			EngineError: EngineError{Message: "session update missing sessionUpdate kind"},
			Line:        string(wrapper.Update),
		}
	}
	update.SessionID = wrapper.SessionID
	return &update, nil
}

// PermissionOpt is one selectable choice in a permission request, in the
// order it should be presented.
type PermissionOpt struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

// Permission option kinds.
const (
	PermissionAllowOnce    = "allow_once"
	PermissionAllowAlways  = "allow_always"
	PermissionRejectOnce   = "reject_once"
	PermissionRejectAlways = "reject_always"
)

// PermissionRequest is the params of a session/request_permission call
// sent to the remote side when a tool call awaits approval.
type PermissionRequest struct {
	SessionID string          `json:"sessionId,omitempty"`
	ToolCall  PermissionTool  `json:"toolCall"`
	Options   []PermissionOpt `json:"options"`
}

// PermissionTool identifies the tool call being gated.
type PermissionTool struct {
	ToolCallID string         `json:"toolCallId"`
	Title      string         `json:"title,omitempty"`
	RawInput   map[string]any `json:"rawInput,omitempty"`
}

// PermissionOutcome is the remote decision on a permission request.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"` // "selected" or "rejected"
	OptionID string `json:"optionId,omitempty"`
}

// permissionOutcomeEnvelope matches the wire shape {"outcome":{...}}.
type permissionOutcomeEnvelope struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// DecodePermissionOutcome parses a session/request_permission response.
func DecodePermissionOutcome(raw json.RawMessage) (*PermissionOutcome, error) {
	var env permissionOutcomeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "malformed permission outcome", Cause: err},
			Line:        string(raw),
		}
	}
	if env.Outcome.Outcome == "" {
		return nil, &ParseError{
			EngineError: EngineError{Message: "permission outcome missing 'outcome' field"},
			Line:        string(raw),
		}
	}
	return &env.Outcome, nil
}

// EncodeNotification serializes a JSON-RPC notification line.
func EncodeNotification(method string, params any) ([]byte, error) {
	body := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params"`
	}{JSONRPC: "2.0", Method: method, Params: params}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s notification: %w", method, err)
	}
	return data, nil
}
