package protocol

// Capabilities reports which control features the current configuration
// supports. Flags are probed from the configuration at initialize time,
// never hard-coded, so a reduced configuration reports a reduced set.
type Capabilities struct {
	CanHandleCanUseTool   bool `json:"can_handle_can_use_tool"`
	CanHandleHookCallback bool `json:"can_handle_hook_callback"`
	CanSetPermissionMode  bool `json:"can_set_permission_mode"`
	CanSetModel           bool `json:"can_set_model"`
	CanHandleMcpMessage   bool `json:"can_handle_mcp_message"`
}

// InitializeResult is the result body of an initialize response.
type InitializeResult struct {
	Capabilities Capabilities `json:"capabilities"`
}

// InterruptResult acknowledges an interrupt request.
type InterruptResult struct {
	Subtype Subtype `json:"subtype"`
}

// SetModelResult echoes the model that is now active.
type SetModelResult struct {
	Model string `json:"model"`
}

// SupportedCommandsResult lists the subtypes this engine understands.
type SupportedCommandsResult struct {
	Commands []Subtype `json:"commands"`
}

// McpServerStatus describes one registered tool server.
type McpServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Embedded  bool   `json:"embedded,omitempty"`
}

// McpServerStatusResult lists the registration state of all tool servers.
type McpServerStatusResult struct {
	Servers []McpServerStatus `json:"servers"`
}
