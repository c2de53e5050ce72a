package control

// Facade is the in-process API surface over the session's controllers. It
// binds the same controller instances the dispatcher routes to, so state
// observed through either path is identical. Optional domains are absent
// rather than stubbed; callers feature-detect with the Has methods.
type Facade struct {
	dispatcher *Dispatcher
}

// NewFacade binds a facade to a dispatcher's controllers.
func NewFacade(d *Dispatcher) *Facade {
	return &Facade{dispatcher: d}
}

// System returns the system control surface.
func (f *Facade) System() *SystemController {
	return f.dispatcher.system
}

// Permission returns the permission control surface.
func (f *Facade) Permission() *PermissionController {
	return f.dispatcher.permission
}

// HasMcp reports whether this configuration carries an MCP domain.
func (f *Facade) HasMcp() bool {
	return f.dispatcher.HasMcpHandler()
}

// Mcp returns the MCP relay, or nil when HasMcp is false.
func (f *Facade) Mcp() McpHandler {
	return f.dispatcher.mcp
}

// HasHooks reports whether this configuration carries a hook domain.
func (f *Facade) HasHooks() bool {
	return f.dispatcher.HasHookHandler()
}

// Hooks returns the hook runner, or nil when HasHooks is false.
func (f *Facade) Hooks() HookHandler {
	return f.dispatcher.hooks
}

// Cleanup tears the session down through the dispatcher's shutdown path.
// There is exactly one teardown sequence regardless of call path.
func (f *Facade) Cleanup() {
	f.dispatcher.Shutdown()
}
