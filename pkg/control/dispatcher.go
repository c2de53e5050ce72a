package control

import (
	"context"
	"sync"
	"time"

	"github.com/codeplane/codeplane/pkg/config"
	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
)

// Built-in timeout defaults, used for kinds the configuration leaves at
// zero.
const (
	defaultGenericTimeout     = 30 * time.Second
	defaultInitializeTimeout  = 60 * time.Second
	defaultPermissionTimeout  = 60 * time.Second
	defaultMcpTimeout         = 60 * time.Second
	defaultStreamCloseTimeout = 5 * time.Second
)

// Timeouts holds the per-subtype deadlines for pending requests plus the
// bound on connection teardown.
type Timeouts struct {
	Generic     time.Duration
	Initialize  time.Duration
	Permission  time.Duration
	Mcp         time.Duration
	StreamClose time.Duration
}

// TimeoutsFromConfig converts configured second values into deadlines,
// falling back to the built-in defaults for unset kinds.
func TimeoutsFromConfig(cfg config.TimeoutConfig) Timeouts {
	pick := func(secs float64, fallback time.Duration) time.Duration {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs * float64(time.Second))
	}
	return Timeouts{
		Generic:     pick(cfg.Generic, defaultGenericTimeout),
		Initialize:  pick(cfg.Initialize, defaultInitializeTimeout),
		Permission:  pick(cfg.Permission, defaultPermissionTimeout),
		Mcp:         pick(cfg.Mcp, defaultMcpTimeout),
		StreamClose: pick(cfg.StreamClose, defaultStreamCloseTimeout),
	}
}

// For returns the deadline for one subtype.
func (t Timeouts) For(subtype protocol.Subtype) time.Duration {
	switch subtype {
	case protocol.SubtypeInitialize:
		return t.Initialize
	case protocol.SubtypeCanUseTool:
		return t.Permission
	case protocol.SubtypeMcpMessage, protocol.SubtypeMcpServerStatus:
		return t.Mcp
	default:
		return t.Generic
	}
}

// McpHandler relays mcp_message requests to an embedded tool server.
// Absent on configurations without an MCP surface.
type McpHandler interface {
	HandleMcpMessage(ctx context.Context, req *protocol.McpMessageRequest) (any, error)
}

// HookHandler runs hook_callback requests. Absent on configurations
// without hooks.
type HookHandler interface {
	HandleHookCallback(ctx context.Context, req *protocol.HookCallbackRequest) (any, error)
}

// pendingRequest is one in-flight control request. resolve runs at most
// once; the first terminal outcome wins and every later one is dropped.
type pendingRequest struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	result any
	err    error
}

func (p *pendingRequest) resolve(result any, err error) {
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}

// Dispatcher routes control requests to controllers, correlates their
// asynchronous completion, and enforces per-subtype timeouts and
// cooperative cancellation.
type Dispatcher struct {
	system     *SystemController
	permission *PermissionController
	mcp        McpHandler
	hooks      HookHandler

	timeouts Timeouts
	pending  sync.Map // requestId -> *pendingRequest
	log      *logger.Logger

	shutdownOnce sync.Once
	shuttingDown chan struct{}
}

// NewDispatcher wires a dispatcher to its controllers. mcp and hooks may
// be nil; the matching subtypes then produce error responses.
func NewDispatcher(system *SystemController, permission *PermissionController, timeouts Timeouts, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Dispatcher{
		system:       system,
		permission:   permission,
		timeouts:     timeouts,
		log:          log,
		shuttingDown: make(chan struct{}),
	}
}

// SetMcpHandler installs the optional MCP message relay.
func (d *Dispatcher) SetMcpHandler(h McpHandler) { d.mcp = h }

// SetHookHandler installs the optional hook runner.
func (d *Dispatcher) SetHookHandler(h HookHandler) { d.hooks = h }

// HasMcpHandler reports whether an MCP relay is installed.
func (d *Dispatcher) HasMcpHandler() bool { return d.mcp != nil }

// HasHookHandler reports whether a hook runner is installed.
func (d *Dispatcher) HasHookHandler() bool { return d.hooks != nil }

// Submit handles one control request to completion. It always returns a
// response: controller results become result bodies, every failure kind
// (controller error, timeout, cancellation, shutdown) becomes an error
// body. The pending-table entry is removed on all paths.
func (d *Dispatcher) Submit(ctx context.Context, req *protocol.ControlRequest) protocol.ControlResponse {
	subtype := req.Payload.Subtype()

	reqCtx, cancel := context.WithCancel(ctx)
	entry := &pendingRequest{done: make(chan struct{}), cancel: cancel}
	if _, loaded := d.pending.LoadOrStore(req.RequestID, entry); loaded {
		cancel()
		return errorResponse(subtype, "duplicate requestId: "+req.RequestID)
	}
	defer func() {
		d.pending.Delete(req.RequestID)
		cancel()
	}()

	select {
	case <-d.shuttingDown:
		return errorResponse(subtype, "engine is shutting down")
	default:
	}

	go func() {
		result, err := d.route(reqCtx, req.Payload)
		entry.resolve(result, err)
	}()

	timer := time.NewTimer(d.timeouts.For(subtype))
	defer timer.Stop()

	select {
	case <-entry.done:
	case <-timer.C:
		entry.resolve(nil, &TimeoutError{Subtype: subtype, Limit: d.timeouts.For(subtype)})
		cancel()
	case <-reqCtx.Done():
		// HandleCancel or the caller's context fired. The entry may
		// already hold a resolution from HandleCancel; this is a no-op
		// then.
		entry.resolve(nil, &CancellationError{RequestID: req.RequestID})
	case <-d.shuttingDown:
		entry.resolve(nil, &CancellationError{RequestID: req.RequestID, Reason: "engine shutdown"})
		cancel()
	}
	<-entry.done

	if entry.err != nil {
		d.logFailure(subtype, req.RequestID, entry.err)
		return errorResponse(subtype, wireMessage(entry.err))
	}
	return protocol.ControlResponse{Subtype: subtype, Result: entry.result}
}

// HandleCancel signals the cancellation token of a pending request and
// rejects it. Unknown or already-resolved ids are a no-op.
func (d *Dispatcher) HandleCancel(requestID string) {
	value, ok := d.pending.Load(requestID)
	if !ok {
		return
	}
	entry := value.(*pendingRequest)
	entry.resolve(nil, &CancellationError{RequestID: requestID})
	entry.cancel()
}

// Shutdown rejects every pending request and refuses new submissions.
// Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shuttingDown)
		d.pending.Range(func(key, value any) bool {
			entry := value.(*pendingRequest)
			entry.resolve(nil, &CancellationError{
				RequestID: key.(string),
				Reason:    "engine shutdown",
			})
			entry.cancel()
			return true
		})
	})
}

// route dispatches a typed payload to its controller. The type switch is
// exhaustive over the payload union; DecodePayload already rejected
// unknown subtypes.
func (d *Dispatcher) route(ctx context.Context, payload protocol.ControlPayload) (any, error) {
	switch p := payload.(type) {
	case *protocol.InitializeRequest:
		return d.system.Initialize(ctx, p)
	case *protocol.InterruptRequest:
		return d.system.Interrupt(ctx)
	case *protocol.SetModelRequest:
		return d.system.SetModel(ctx, p.Model)
	case *protocol.SupportedCommandsRequest:
		return d.system.SupportedCommands(ctx)
	case *protocol.CanUseToolRequest:
		return d.permission.CanUseTool(ctx, p)
	case *protocol.SetPermissionModeRequest:
		return d.permission.SetMode(ctx, p.Mode)
	case *protocol.McpMessageRequest:
		if d.mcp == nil {
			return nil, newControllerError("mcp_message is not supported by this configuration", nil)
		}
		if !d.system.sess.HasSdkServer(p.ServerName) {
			return nil, newControllerError("unknown mcp server: "+p.ServerName, nil)
		}
		return d.mcp.HandleMcpMessage(ctx, p)
	case *protocol.McpServerStatusRequest:
		return d.system.McpServerStatus(ctx)
	case *protocol.HookCallbackRequest:
		if d.hooks == nil {
			return nil, newControllerError("hook_callback is not supported by this configuration", nil)
		}
		if _, ok := d.system.sess.Hook(p.CallbackID); !ok {
			return nil, newControllerError("unknown hook callback: "+p.CallbackID, nil)
		}
		return d.hooks.HandleHookCallback(ctx, p)
	default:
		return nil, &protocol.UnsupportedSubtypeError{Requested: string(payload.Subtype())}
	}
}

func (d *Dispatcher) logFailure(subtype protocol.Subtype, requestID string, err error) {
	if d.system != nil && d.system.sess.DebugMode() {
		d.log.Debug("%s request %s failed: %v", subtype, requestID, err)
	}
}

// wireMessage extracts the human-readable message for an error response.
// Controller causes stay off the wire.
func wireMessage(err error) string {
	if ce, ok := err.(*ControllerError); ok {
		return ce.WireMessage()
	}
	return err.Error()
}

func errorResponse(subtype protocol.Subtype, message string) protocol.ControlResponse {
	return protocol.ControlResponse{Subtype: subtype, Error: message}
}
