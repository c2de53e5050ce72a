package control

import (
	"context"
	"strings"

	"github.com/codeplane/codeplane/pkg/config"
	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
)

// SystemController handles session-level control requests: the initialize
// handshake, interrupts, model switching and command discovery.
type SystemController struct {
	sess    *SessionContext
	runtime *config.Runtime
	log     *logger.Logger

	// probes override capability detection in tests; nil fields fall back
	// to the live context/runtime checks.
	canUseToolProbe func() bool
	hookProbe       func() bool
	mcpProbe        func() bool
}

// NewSystemController creates the system controller for a session.
func NewSystemController(sess *SessionContext, runtime *config.Runtime, log *logger.Logger) *SystemController {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &SystemController{sess: sess, runtime: runtime, log: log}
}

// Initialize registers the caller's tool servers, sub-agents and hooks
// into the session context and returns the negotiated capabilities.
// Repeated calls merge additively and re-probe, so initialize is
// idempotent within a session.
func (c *SystemController) Initialize(ctx context.Context, req *protocol.InitializeRequest) (*protocol.InitializeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.sess.RegisterExternalServers(req.McpServers)
	c.sess.RegisterSdkServers(req.SdkMcpServers)
	c.sess.RegisterAgents(req.Agents)
	c.sess.RegisterHooks(req.Hooks)

	caps := c.probeCapabilities()
	c.log.Info("initialized: %d sdk servers, %d agents, capabilities %+v",
		c.sess.SdkServerCount(), len(c.sess.AgentNames()), caps)
	return &protocol.InitializeResult{Capabilities: caps}, nil
}

// probeCapabilities computes each capability flag independently from the
// current configuration and session state. No flag is hard-coded; a
// reduced configuration reports a reduced set.
func (c *SystemController) probeCapabilities() protocol.Capabilities {
	canUseTool := c.runtime != nil
	if c.canUseToolProbe != nil {
		canUseTool = c.canUseToolProbe()
	}
	hooks := c.sess.HookCount() > 0
	if c.hookProbe != nil {
		hooks = c.hookProbe()
	}
	mcp := c.sess.SdkServerCount() > 0
	if c.mcpProbe != nil {
		mcp = c.mcpProbe()
	}

	var canSetModel, canSetMode bool
	if c.runtime != nil {
		canSetModel = c.runtime.CanSetModel()
		canSetMode = c.runtime.CanSetApprovalMode()
	}

	return protocol.Capabilities{
		CanHandleCanUseTool:   canUseTool,
		CanHandleHookCallback: hooks,
		CanSetPermissionMode:  canSetMode,
		CanSetModel:           canSetModel,
		CanHandleMcpMessage:   mcp,
	}
}

// Interrupt fires the registered interrupt callback exactly once and
// acknowledges. An interrupt with no active cancellation token still
// succeeds.
func (c *SystemController) Interrupt(ctx context.Context) (*protocol.InterruptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.sess.Interrupt()
	return &protocol.InterruptResult{Subtype: protocol.SubtypeInterrupt}, nil
}

// SetModel validates and applies a model switch. A blank id is rejected
// before the configuration mutator is ever consulted.
func (c *SystemController) SetModel(ctx context.Context, model string) (*protocol.SetModelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, newControllerError("Invalid model: model id must be a non-empty string", nil)
	}
	if c.runtime == nil || !c.runtime.CanSetModel() {
		return nil, newControllerError("model switching is not supported by this configuration", nil)
	}
	if err := c.runtime.SetModel(model); err != nil {
		return nil, newControllerError("Invalid model: "+model, err)
	}
	return &protocol.SetModelResult{Model: model}, nil
}

// SupportedCommands returns the static list of subtypes this engine
// understands.
func (c *SystemController) SupportedCommands(ctx context.Context) (*protocol.SupportedCommandsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &protocol.SupportedCommandsResult{Commands: protocol.Subtypes()}, nil
}

// McpServerStatus reports the registration state of all tool servers.
func (c *SystemController) McpServerStatus(ctx context.Context) (*protocol.McpServerStatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &protocol.McpServerStatusResult{Servers: c.sess.ServerStatuses()}, nil
}
