// Package toolcall tracks the permission and execution life cycle of tool
// invocations. Each call moves through a monotonic status chain and the
// tracker notifies registered listeners on every change.
package toolcall

import (
	"fmt"
	"sync"
)

// Status is the life-cycle state of a tool call.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusApproved         Status = "approved"
	StatusDenied           Status = "denied"
	StatusExecuting        Status = "executing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// statusRank orders statuses along the chain. A transition must strictly
// increase rank.
var statusRank = map[Status]int{
	StatusPending:          0,
	StatusAwaitingApproval: 1,
	StatusApproved:         2,
	StatusDenied:           2,
	StatusExecuting:        3,
	StatusCompleted:        4,
	StatusFailed:           4,
}

// Terminal reports whether a status accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDenied, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Call is the tracked record of one tool invocation.
type Call struct {
	ID       string         `json:"toolCallId"`
	Name     string         `json:"toolName"`
	Args     map[string]any `json:"args,omitempty"`
	Status   Status         `json:"status"`
	Decision Status         `json:"approvalDecision,omitempty"`
	Result   any            `json:"result,omitempty"`
}

// InvalidTransitionError reports a rejected status change.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("tool call %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// UnknownCallError reports an id the tracker has never seen.
type UnknownCallError struct {
	ID string
}

func (e *UnknownCallError) Error() string {
	return fmt.Sprintf("unknown tool call: %s", e.ID)
}

// Listener observes status changes. prev is the status before the change;
// on Begin, prev equals the initial status.
type Listener func(call Call, prev Status)

// Tracker holds all tool calls of a session.
type Tracker struct {
	mu        sync.Mutex
	calls     map[string]*Call
	order     []string
	listeners []Listener
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{calls: make(map[string]*Call)}
}

// Subscribe registers a listener for all subsequent status changes.
func (t *Tracker) Subscribe(fn Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Begin registers a new tool call in the pending state and notifies
// listeners. Beginning an id twice is an error.
func (t *Tracker) Begin(id, name string, args map[string]any) error {
	t.mu.Lock()
	if _, ok := t.calls[id]; ok {
		t.mu.Unlock()
		return fmt.Errorf("tool call %s already tracked", id)
	}
	call := &Call{ID: id, Name: name, Args: args, Status: StatusPending}
	t.calls[id] = call
	t.order = append(t.order, id)
	snapshot := *call
	listeners := t.snapshotListenersLocked()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot, StatusPending)
	}
	return nil
}

// Transition moves a call to the next status. Transitions on terminal
// calls are absorbed without error; backward or same-rank transitions are
// rejected.
func (t *Tracker) Transition(id string, next Status) error {
	return t.transition(id, next, nil)
}

// Resolve moves a call to a terminal execution state and attaches the
// result payload.
func (t *Tracker) Resolve(id string, next Status, result any) error {
	if next != StatusCompleted && next != StatusFailed {
		return fmt.Errorf("tool call %s: %s is not an execution outcome", id, next)
	}
	return t.transition(id, next, result)
}

func (t *Tracker) transition(id string, next Status, result any) error {
	t.mu.Lock()
	call, ok := t.calls[id]
	if !ok {
		t.mu.Unlock()
		return &UnknownCallError{ID: id}
	}
	prev := call.Status
	if prev.Terminal() {
		t.mu.Unlock()
		return nil
	}
	nextRank, ok := statusRank[next]
	if !ok || nextRank <= statusRank[prev] {
		t.mu.Unlock()
		return &InvalidTransitionError{ID: id, From: prev, To: next}
	}
	call.Status = next
	if next == StatusApproved || next == StatusDenied {
		call.Decision = next
	}
	if result != nil {
		call.Result = result
	}
	snapshot := *call
	listeners := t.snapshotListenersLocked()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot, prev)
	}
	return nil
}

// Cancel forces a call to failed from any non-terminal state. Cancelling
// an unknown or already terminal call is a no-op.
func (t *Tracker) Cancel(id string) {
	t.mu.Lock()
	call, ok := t.calls[id]
	if !ok || call.Status.Terminal() {
		t.mu.Unlock()
		return
	}
	prev := call.Status
	call.Status = StatusFailed
	snapshot := *call
	listeners := t.snapshotListenersLocked()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot, prev)
	}
}

// Get returns a copy of the tracked call.
func (t *Tracker) Get(id string) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[id]
	if !ok {
		return Call{}, false
	}
	return *call, true
}

// Active returns the ids of all non-terminal calls in begin order.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, id := range t.order {
		if !t.calls[id].Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *Tracker) snapshotListenersLocked() []Listener {
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	return listeners
}
