package protocol

import "fmt"

// EngineError is the base error type for control-plane errors.
type EngineError struct {
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ParseError is raised for a malformed wire line or request body. It is
// scoped to the offending line; the stream stays usable.
type ParseError struct {
	EngineError
	Line string
}

// UnsupportedSubtypeError is raised when a control request names a subtype
// outside the recognized set.
type UnsupportedSubtypeError struct {
	Requested string
}

func (e *UnsupportedSubtypeError) Error() string {
	if e.Requested == "" {
		return "control request missing subtype"
	}
	return fmt.Sprintf("unsupported control request subtype: %s", e.Requested)
}

// MalformedUpdateError is raised for a session update whose payload does
// not match its declared kind. The update dispatcher logs these and keeps
// the stream alive.
type MalformedUpdateError struct {
	EngineError
	Kind UpdateKind
}
