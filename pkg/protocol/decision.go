package protocol

// Permission decision behaviors for can_use_tool results.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// PermissionDecision is the result body of a can_use_tool response.
type PermissionDecision struct {
	Behavior     string         `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// SetPermissionModeResult echoes the approval mode that is now active.
type SetPermissionModeResult struct {
	Mode string `json:"mode"`
}
