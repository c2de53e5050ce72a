package control

import (
	"fmt"
	"time"

	"github.com/codeplane/codeplane/pkg/protocol"
)

// ControllerError is a controller failure surfaced as a structured error
// response. Message is what goes on the wire; Cause stays on the debug
// log.
type ControllerError struct {
	protocol.EngineError
}

func newControllerError(message string, cause error) *ControllerError {
	return &ControllerError{protocol.EngineError{Message: message, Cause: cause}}
}

// WireMessage returns the human-readable message for the error response,
// without the cause chain.
func (e *ControllerError) WireMessage() string {
	return e.Message
}

// TimeoutError is raised when a request's configured deadline elapses
// before the controller resolves it.
type TimeoutError struct {
	Subtype protocol.Subtype
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s request timed out after %s", e.Subtype, e.Limit)
}

// CancellationError is raised when a pending request is rejected by an
// explicit control_cancel_request or engine shutdown.
type CancellationError struct {
	RequestID string
	Reason    string
}

func (e *CancellationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("request %s cancelled: %s", e.RequestID, e.Reason)
	}
	return fmt.Sprintf("request %s cancelled", e.RequestID)
}
