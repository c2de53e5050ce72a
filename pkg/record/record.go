// Package record defines the persisted chat-record model. Records are
// written by the live session pipeline and read back by the replayer; the
// replayer never mutates them.
package record

import (
	"encoding/json"
	"strings"
	"time"
)

// Record roles. The role discriminates what a record carries.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool_result"
	RoleSystem     = "system"
)

// Part represents one piece of message content. Different part types
// implement this interface.
type Part interface {
	IsPart()
}

// TextPart is plain text content. Thought marks reasoning output that is
// rendered differently from regular text.
type TextPart struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

func (t TextPart) IsPart() {}

// FunctionCallPart is a tool invocation requested by the assistant.
type FunctionCallPart struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (f FunctionCallPart) IsPart() {}

// FunctionResponsePart carries a tool's response back to the model.
type FunctionResponsePart struct {
	Type     string `json:"type"`
	CallID   string `json:"callId,omitempty"`
	Name     string `json:"name"`
	Response any    `json:"response,omitempty"`
}

func (f FunctionResponsePart) IsPart() {}

// ChatRecord is one persisted entry of a session transcript.
type ChatRecord struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// tool_result fields
	CallID  string `json:"callId,omitempty"`
	Success bool   `json:"success,omitempty"`
	Display any    `json:"display,omitempty"`

	// system fields
	Subtype string `json:"subtype,omitempty"`
}

// NewUserRecord creates a user record with text content.
func NewUserRecord(text string) ChatRecord {
	return ChatRecord{
		Role:      RoleUser,
		Parts:     []Part{TextPart{Type: "text", Text: text}},
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewAssistantRecord creates an assistant record with the given parts.
func NewAssistantRecord(parts ...Part) ChatRecord {
	return ChatRecord{
		Role:      RoleAssistant,
		Parts:     parts,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewToolResultRecord creates a tool_result record.
func NewToolResultRecord(callID string, success bool, parts []Part, display any) ChatRecord {
	return ChatRecord{
		Role:      RoleToolResult,
		Parts:     parts,
		Timestamp: time.Now().UnixMilli(),
		CallID:    callID,
		Success:   success,
		Display:   display,
	}
}

// ExtractText extracts all non-thought text content from a record.
func (r *ChatRecord) ExtractText() string {
	var b strings.Builder
	for _, part := range r.Parts {
		if tp, ok := part.(TextPart); ok && !tp.Thought {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// FunctionCalls extracts all function-call parts from a record.
func (r *ChatRecord) FunctionCalls() []FunctionCallPart {
	calls := make([]FunctionCallPart, 0)
	for _, part := range r.Parts {
		if fc, ok := part.(FunctionCallPart); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

// ResponseName returns the tool name recovered from the first
// function-response part, or "" when the record carries none.
func (r *ChatRecord) ResponseName() string {
	for _, part := range r.Parts {
		if fr, ok := part.(FunctionResponsePart); ok {
			return fr.Name
		}
	}
	return ""
}

// UnmarshalJSON handles the Part interface when decoding records.
func (r *ChatRecord) UnmarshalJSON(data []byte) error {
	type rawRecord struct {
		Role      string            `json:"role"`
		Parts     []json.RawMessage `json:"parts,omitempty"`
		Timestamp int64             `json:"timestamp,omitempty"`
		CallID    string            `json:"callId,omitempty"`
		Success   bool              `json:"success,omitempty"`
		Display   any               `json:"display,omitempty"`
		Subtype   string            `json:"subtype,omitempty"`
	}

	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Role = raw.Role
	r.Timestamp = raw.Timestamp
	r.CallID = raw.CallID
	r.Success = raw.Success
	r.Display = raw.Display
	r.Subtype = raw.Subtype

	r.Parts = make([]Part, 0, len(raw.Parts))
	for _, rawPart := range raw.Parts {
		var typeCheck struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(rawPart, &typeCheck); err != nil {
			continue
		}

		switch typeCheck.Type {
		case "text":
			var tp TextPart
			if err := json.Unmarshal(rawPart, &tp); err == nil {
				r.Parts = append(r.Parts, tp)
			}
		case "functionCall":
			var fc FunctionCallPart
			if err := json.Unmarshal(rawPart, &fc); err == nil {
				r.Parts = append(r.Parts, fc)
			}
		case "functionResponse":
			var fr FunctionResponsePart
			if err := json.Unmarshal(rawPart, &fr); err == nil {
				r.Parts = append(r.Parts, fr)
			}
		}
	}

	return nil
}
