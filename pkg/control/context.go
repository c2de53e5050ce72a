// Package control implements the control-plane engine: the shared session
// context, the request dispatcher with correlation and cancellation, the
// system and permission controllers, and the in-process service facade.
package control

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/codeplane/codeplane/pkg/protocol"
)

// SessionContext is the state shared by all controllers of one session. It
// is constructed explicitly and passed by reference; controllers are the
// only mutators. Collection fields merge additively so concurrent requests
// registering disjoint entries never clobber each other.
type SessionContext struct {
	mu sync.Mutex

	mcpServers    map[string]json.RawMessage
	sdkMcpServers map[string]json.RawMessage
	agents        map[string]protocol.AgentDefinition
	hooks         map[string]json.RawMessage

	interruptFn  func()
	activeCancel context.CancelFunc

	debugMode bool
}

// NewSessionContext creates an empty session context.
func NewSessionContext() *SessionContext {
	return &SessionContext{
		mcpServers:    make(map[string]json.RawMessage),
		sdkMcpServers: make(map[string]json.RawMessage),
		agents:        make(map[string]protocol.AgentDefinition),
		hooks:         make(map[string]json.RawMessage),
	}
}

// SetDebugMode toggles verbose cause logging for controller errors.
func (s *SessionContext) SetDebugMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugMode = on
}

// DebugMode reports whether debug logging is enabled.
func (s *SessionContext) DebugMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugMode
}

// RegisterExternalServers merges externally-hosted tool servers into the
// context. Existing registrations are kept; repeated initialize calls with
// the same servers are a no-op.
func (s *SessionContext) RegisterExternalServers(servers map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, spec := range servers {
		if _, ok := s.mcpServers[name]; !ok {
			s.mcpServers[name] = spec
		}
	}
}

// RegisterSdkServers merges SDK-embedded tool servers into the context.
func (s *SessionContext) RegisterSdkServers(servers map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, spec := range servers {
		if _, ok := s.sdkMcpServers[name]; !ok {
			s.sdkMcpServers[name] = spec
		}
	}
}

// RegisterAgents merges sub-agent definitions into the context, keyed by
// name.
func (s *SessionContext) RegisterAgents(agents []protocol.AgentDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range agents {
		if agent.Name == "" {
			continue
		}
		if _, ok := s.agents[agent.Name]; !ok {
			s.agents[agent.Name] = agent
		}
	}
}

// RegisterHooks merges hook registrations into the context, keyed by
// callback id.
func (s *SessionContext) RegisterHooks(hooks map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, spec := range hooks {
		if _, ok := s.hooks[id]; !ok {
			s.hooks[id] = spec
		}
	}
}

// HasSdkServer reports whether an SDK-embedded server is registered under
// the given name.
func (s *SessionContext) HasSdkServer(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sdkMcpServers[name]
	return ok
}

// SdkServerCount returns the number of registered SDK-embedded servers.
func (s *SessionContext) SdkServerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sdkMcpServers)
}

// HookCount returns the number of registered hooks.
func (s *SessionContext) HookCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}

// Hook returns the registered hook spec for a callback id.
func (s *SessionContext) Hook(callbackID string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.hooks[callbackID]
	return spec, ok
}

// AgentNames returns the registered sub-agent names, sorted.
func (s *SessionContext) AgentNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerStatuses returns the registration state of every tool server,
// sorted by name, SDK-embedded servers last.
func (s *SessionContext) ServerStatuses() []protocol.McpServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	external := make([]string, 0, len(s.mcpServers))
	for name := range s.mcpServers {
		external = append(external, name)
	}
	sort.Strings(external)

	embedded := make([]string, 0, len(s.sdkMcpServers))
	for name := range s.sdkMcpServers {
		embedded = append(embedded, name)
	}
	sort.Strings(embedded)

	statuses := make([]protocol.McpServerStatus, 0, len(external)+len(embedded))
	for _, name := range external {
		statuses = append(statuses, protocol.McpServerStatus{Name: name, Connected: true})
	}
	for _, name := range embedded {
		statuses = append(statuses, protocol.McpServerStatus{Name: name, Connected: true, Embedded: true})
	}
	return statuses
}

// SetInterrupt registers the callback invoked on interrupt requests.
func (s *SessionContext) SetInterrupt(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptFn = fn
}

// SetActiveCancel installs the cancellation token of the active turn.
// Passing nil clears it.
func (s *SessionContext) SetActiveCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCancel = cancel
}

// Interrupt invokes the registered interrupt callback once and signals the
// active turn's cancellation token when one is installed. Interrupt with
// no active token still invokes the callback.
func (s *SessionContext) Interrupt() {
	s.mu.Lock()
	fn := s.interruptFn
	cancel := s.activeCancel
	s.activeCancel = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	if cancel != nil {
		cancel()
	}
}
