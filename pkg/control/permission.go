package control

import (
	"context"
	"strings"
	"time"

	"github.com/codeplane/codeplane/pkg/config"
	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
	"github.com/codeplane/codeplane/pkg/toolcall"
)

// PermissionRequester sends an outgoing session/request_permission call
// and blocks until the remote decision or ctx expiry.
type PermissionRequester func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error)

// PermissionController negotiates tool-use approval with the remote side.
type PermissionController struct {
	sess      *SessionContext
	runtime   *config.Runtime
	requester PermissionRequester
	log       *logger.Logger
}

// NewPermissionController creates the permission controller for a session.
func NewPermissionController(sess *SessionContext, runtime *config.Runtime, log *logger.Logger) *PermissionController {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &PermissionController{sess: sess, runtime: runtime, log: log}
}

// SetRequester installs the outgoing permission channel. Without one,
// can_use_tool requests fail and awaiting_approval tool calls are denied.
func (c *PermissionController) SetRequester(fn PermissionRequester) {
	c.requester = fn
}

// HasRequester reports whether an outgoing permission channel exists.
func (c *PermissionController) HasRequester() bool {
	return c.requester != nil
}

// SuggestionOptions maps a tool-confirmation description to the ordered
// option list presented to the remote side. Caller-provided suggestions
// are preserved in input order. A structurally invalid description (no
// tool name, or a suggestion missing its id or kind) yields nil; the
// function never panics.
func SuggestionOptions(req *protocol.CanUseToolRequest) []protocol.PermissionOpt {
	if req == nil || strings.TrimSpace(req.ToolName) == "" {
		return nil
	}
	if len(req.Suggestions) > 0 {
		opts := make([]protocol.PermissionOpt, 0, len(req.Suggestions))
		for _, s := range req.Suggestions {
			if s.OptionID == "" || s.Kind == "" {
				return nil
			}
			opts = append(opts, s)
		}
		return opts
	}
	return []protocol.PermissionOpt{
		{OptionID: "allow", Name: "Allow", Kind: protocol.PermissionAllowOnce},
		{OptionID: "allow_always", Name: "Always allow", Kind: protocol.PermissionAllowAlways},
		{OptionID: "reject", Name: "Deny", Kind: protocol.PermissionRejectOnce},
	}
}

// CanUseTool resolves one permission decision. In bypassPermissions mode
// the decision is allowed locally; otherwise the remote side is asked and
// its outcome mapped to allow/deny.
func (c *PermissionController) CanUseTool(ctx context.Context, req *protocol.CanUseToolRequest) (*protocol.PermissionDecision, error) {
	opts := SuggestionOptions(req)
	if opts == nil {
		return nil, newControllerError("malformed can_use_tool request: missing tool name or malformed suggestions", nil)
	}

	if c.mode() == "bypassPermissions" {
		return &protocol.PermissionDecision{
			Behavior:     protocol.BehaviorAllow,
			UpdatedInput: req.Input,
		}, nil
	}

	if c.requester == nil {
		return nil, newControllerError("no permission channel is registered", nil)
	}

	outcome, err := c.requester(ctx, protocol.PermissionRequest{
		ToolCall: protocol.PermissionTool{
			ToolCallID: req.ToolCallID,
			Title:      req.ToolName,
			RawInput:   req.Input,
		},
		Options: opts,
	})
	if err != nil {
		return nil, newControllerError("permission request failed", err)
	}

	if approved(outcome, opts) {
		return &protocol.PermissionDecision{
			Behavior:     protocol.BehaviorAllow,
			UpdatedInput: req.Input,
		}, nil
	}
	return &protocol.PermissionDecision{
		Behavior: protocol.BehaviorDeny,
		Message:  "User rejected the tool call",
	}, nil
}

// SetMode switches the approval mode through the configuration layer.
func (c *PermissionController) SetMode(ctx context.Context, mode string) (*protocol.SetPermissionModeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.runtime == nil || !c.runtime.CanSetApprovalMode() {
		return nil, newControllerError("permission mode switching is not supported by this configuration", nil)
	}
	if err := c.runtime.SetApprovalMode(mode); err != nil {
		return nil, newControllerError("invalid permission mode: "+mode, err)
	}
	return &protocol.SetPermissionModeResult{Mode: strings.TrimSpace(mode)}, nil
}

// TrackerListener returns the status callback the tool-execution scheduler
// registers on its tracker. When a call enters awaiting_approval the
// listener emits an outgoing permission request and feeds the decision
// back as approved or denied. All other status changes pass through.
func (c *PermissionController) TrackerListener(tracker *toolcall.Tracker, sessionID string, timeout Timeouts) toolcall.Listener {
	return func(call toolcall.Call, prev toolcall.Status) {
		if call.Status != toolcall.StatusAwaitingApproval {
			return
		}
		if c.mode() == "bypassPermissions" {
			if err := tracker.Transition(call.ID, toolcall.StatusApproved); err != nil {
				c.log.Warn("auto-approve of %s failed: %v", call.ID, err)
			}
			return
		}
		go c.negotiate(tracker, sessionID, call, timeout.Permission)
	}
}

func (c *PermissionController) negotiate(tracker *toolcall.Tracker, sessionID string, call toolcall.Call, timeout time.Duration) {
	next := toolcall.StatusDenied
	defer func() {
		if err := tracker.Transition(call.ID, next); err != nil {
			c.log.Warn("permission decision for %s not applied: %v", call.ID, err)
		}
	}()

	if c.requester == nil {
		c.log.Warn("denying %s: no permission channel is registered", call.ID)
		return
	}

	opts := SuggestionOptions(&protocol.CanUseToolRequest{
		ToolName:   call.Name,
		Input:      call.Args,
		ToolCallID: call.ID,
	})
	if opts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	outcome, err := c.requester(ctx, protocol.PermissionRequest{
		SessionID: sessionID,
		ToolCall: protocol.PermissionTool{
			ToolCallID: call.ID,
			Title:      call.Name,
			RawInput:   call.Args,
		},
		Options: opts,
	})
	if err != nil {
		c.log.Warn("permission request for %s failed: %v", call.ID, err)
		return
	}
	if approved(outcome, opts) {
		next = toolcall.StatusApproved
	}
}

func (c *PermissionController) mode() string {
	if c.runtime == nil {
		return ""
	}
	return c.runtime.PermissionMode()
}

// approved maps a remote outcome onto the options that were offered. Only
// an explicit selection of an allow-kind option approves.
func approved(outcome *protocol.PermissionOutcome, opts []protocol.PermissionOpt) bool {
	if outcome == nil || outcome.Outcome != "selected" {
		return false
	}
	for _, opt := range opts {
		if opt.OptionID == outcome.OptionID {
			return strings.HasPrefix(opt.Kind, "allow")
		}
	}
	return false
}
