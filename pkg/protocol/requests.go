package protocol

import (
	"encoding/json"
	"fmt"
)

// Subtype identifies which control operation a request represents.
type Subtype string

// The closed set of recognized control subtypes.
const (
	SubtypeInitialize        Subtype = "initialize"
	SubtypeInterrupt         Subtype = "interrupt"
	SubtypeSetModel          Subtype = "set_model"
	SubtypeSupportedCommands Subtype = "supported_commands"
	SubtypeCanUseTool        Subtype = "can_use_tool"
	SubtypeSetPermissionMode Subtype = "set_permission_mode"
	SubtypeMcpMessage        Subtype = "mcp_message"
	SubtypeMcpServerStatus   Subtype = "mcp_server_status"
	SubtypeHookCallback      Subtype = "hook_callback"
)

// Subtypes returns every recognized subtype in a stable order. This is the
// payload of a supported_commands response.
func Subtypes() []Subtype {
	return []Subtype{
		SubtypeInitialize,
		SubtypeInterrupt,
		SubtypeSetModel,
		SubtypeSupportedCommands,
		SubtypeCanUseTool,
		SubtypeSetPermissionMode,
		SubtypeMcpMessage,
		SubtypeMcpServerStatus,
		SubtypeHookCallback,
	}
}

// ControlPayload is the sealed union of control request payloads. Adding a
// subtype without a payload type breaks DecodePayload's switch at build
// time, not at runtime.
type ControlPayload interface {
	Subtype() Subtype
}

// AgentDefinition declares a sub-agent made available during initialize.
type AgentDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Model       string `json:"model,omitempty"`
}

// InitializeRequest negotiates capabilities and registers tool servers.
// McpServers holds externally-hosted servers; SdkMcpServers holds servers
// embedded in the SDK process and reachable only via mcp_message.
type InitializeRequest struct {
	McpServers    map[string]json.RawMessage `json:"mcpServers,omitempty"`
	SdkMcpServers map[string]json.RawMessage `json:"sdkMcpServers,omitempty"`
	Agents        []AgentDefinition          `json:"agents,omitempty"`
	Hooks         map[string]json.RawMessage `json:"hooks,omitempty"`
}

// InterruptRequest asks the engine to stop the active turn.
type InterruptRequest struct{}

// SetModelRequest switches the active model.
type SetModelRequest struct {
	Model string `json:"model"`
}

// SupportedCommandsRequest asks which subtypes this engine understands.
type SupportedCommandsRequest struct{}

// CanUseToolRequest asks for a permission decision on a tool invocation.
type CanUseToolRequest struct {
	ToolName    string          `json:"toolName"`
	Input       map[string]any  `json:"input,omitempty"`
	Suggestions []PermissionOpt `json:"permissionSuggestions,omitempty"`
	ToolCallID  string          `json:"toolCallId,omitempty"`
}

// SetPermissionModeRequest switches the approval mode.
type SetPermissionModeRequest struct {
	Mode string `json:"mode"`
}

// McpMessageRequest relays one JSON-RPC message to a registered SDK tool
// server.
type McpMessageRequest struct {
	ServerName string          `json:"serverName"`
	Message    json.RawMessage `json:"message"`
}

// McpServerStatusRequest asks for the registration state of tool servers.
type McpServerStatusRequest struct{}

// HookCallbackRequest invokes a previously registered hook by callback id.
type HookCallbackRequest struct {
	CallbackID string          `json:"callbackId"`
	Input      json.RawMessage `json:"input,omitempty"`
	ToolUseID  string          `json:"toolUseId,omitempty"`
}

// DecodePayload decodes a control request body into its typed payload.
// Unknown subtypes yield UnsupportedSubtypeError, which the dispatcher
// turns into an error response rather than a dropped connection.
func DecodePayload(raw json.RawMessage) (ControlPayload, error) {
	var head struct {
		Subtype Subtype `json:"subtype"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "control request body is not an object", Cause: err},
			Line:        string(raw),
		}
	}

	decode := func(dst ControlPayload) (ControlPayload, error) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, &ParseError{
				EngineError: EngineError{
					Message: fmt.Sprintf("malformed %s request", head.Subtype),
					Cause:   err,
				},
				Line: string(raw),
			}
		}
		return dst, nil
	}

	switch head.Subtype {
	case SubtypeInitialize:
		return decode(&InitializeRequest{})
	case SubtypeInterrupt:
		return decode(&InterruptRequest{})
	case SubtypeSetModel:
		return decode(&SetModelRequest{})
	case SubtypeSupportedCommands:
		return decode(&SupportedCommandsRequest{})
	case SubtypeCanUseTool:
		return decode(&CanUseToolRequest{})
	case SubtypeSetPermissionMode:
		return decode(&SetPermissionModeRequest{})
	case SubtypeMcpMessage:
		return decode(&McpMessageRequest{})
	case SubtypeMcpServerStatus:
		return decode(&McpServerStatusRequest{})
	case SubtypeHookCallback:
		return decode(&HookCallbackRequest{})
	default:
		return nil, &UnsupportedSubtypeError{Requested: string(head.Subtype)}
	}
}

func (i *InitializeRequest) Subtype() Subtype        { return SubtypeInitialize }
func (i *InterruptRequest) Subtype() Subtype         { return SubtypeInterrupt }
func (s *SetModelRequest) Subtype() Subtype          { return SubtypeSetModel }
func (s *SupportedCommandsRequest) Subtype() Subtype { return SubtypeSupportedCommands }
func (c *CanUseToolRequest) Subtype() Subtype        { return SubtypeCanUseTool }
func (s *SetPermissionModeRequest) Subtype() Subtype { return SubtypeSetPermissionMode }
func (m *McpMessageRequest) Subtype() Subtype        { return SubtypeMcpMessage }
func (m *McpServerStatusRequest) Subtype() Subtype   { return SubtypeMcpServerStatus }
func (h *HookCallbackRequest) Subtype() Subtype      { return SubtypeHookCallback }
