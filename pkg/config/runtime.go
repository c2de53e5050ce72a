package config

import (
	"fmt"
	"strings"
	"sync"
)

// Runtime is the mutable configuration surface the control plane probes
// and mutates. Mutators are optional; capability negotiation checks for
// their presence instead of assuming a fixed feature set, so a reduced
// configuration reports a reduced capability set.
type Runtime struct {
	mu  sync.Mutex
	cfg *Config

	setModel        func(string) error
	setApprovalMode func(string) error
	knownModels     []ModelSpec
}

// NewRuntime wraps a loaded Config.
func NewRuntime(cfg *Config) *Runtime {
	if cfg == nil {
		cfg = &Config{Permission: PermissionConfig{Mode: "default"}}
	}
	return &Runtime{cfg: cfg}
}

// OnSetModel registers the model mutator. Registering it is what makes the
// engine report can_set_model during capability negotiation.
func (r *Runtime) OnSetModel(fn func(id string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setModel = fn
}

// OnSetApprovalMode registers the permission-mode mutator.
func (r *Runtime) OnSetApprovalMode(fn func(mode string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setApprovalMode = fn
}

// SetKnownModels installs the model catalog used to validate set_model.
func (r *Runtime) SetKnownModels(specs []ModelSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownModels = specs
}

// CanSetModel reports whether a model mutator is registered.
func (r *Runtime) CanSetModel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setModel != nil
}

// CanSetApprovalMode reports whether a permission-mode mutator is
// registered.
func (r *Runtime) CanSetApprovalMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setApprovalMode != nil
}

// Model returns the active model id.
func (r *Runtime) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Model.ID
}

// PermissionMode returns the active permission mode.
func (r *Runtime) PermissionMode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Permission.Mode
}

// Timeouts returns a copy of the timeout configuration.
func (r *Runtime) Timeouts() TimeoutConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Timeouts
}

// SetModel validates the id against the catalog (when one is installed),
// delegates to the registered mutator, and records the new id.
func (r *Runtime) SetModel(id string) error {
	r.mu.Lock()
	mutator := r.setModel
	known := r.knownModels
	r.mu.Unlock()

	if mutator == nil {
		return fmt.Errorf("model switching is not supported by this configuration")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("empty model id")
	}
	if len(known) > 0 && !containsModel(known, id) {
		return fmt.Errorf("unknown model: %s", id)
	}
	if err := mutator(id); err != nil {
		return err
	}

	r.mu.Lock()
	r.cfg.Model.ID = id
	r.mu.Unlock()
	return nil
}

// SetApprovalMode delegates to the registered mutator and records the new
// mode.
func (r *Runtime) SetApprovalMode(mode string) error {
	r.mu.Lock()
	mutator := r.setApprovalMode
	r.mu.Unlock()

	if mutator == nil {
		return fmt.Errorf("permission mode switching is not supported by this configuration")
	}
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return fmt.Errorf("empty permission mode")
	}
	if err := mutator(mode); err != nil {
		return err
	}

	r.mu.Lock()
	r.cfg.Permission.Mode = mode
	r.mu.Unlock()
	return nil
}

func containsModel(specs []ModelSpec, id string) bool {
	for _, spec := range specs {
		if spec.ID == id {
			return true
		}
	}
	return false
}
