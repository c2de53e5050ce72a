// Package protocol defines the wire model of the control plane: the
// newline-delimited JSON envelopes exchanged with an embedding SDK or
// editor extension, the closed set of control request payloads, and the
// JSON-RPC session-event notifications.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators.
const (
	TypeControlRequest       = "control_request"
	TypeControlResponse      = "control_response"
	TypeControlCancelRequest = "control_cancel_request"
)

// JSON-RPC methods used on the notification channel.
const (
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
)

// Envelope is the first-stage decode of one wire line. Exactly one of the
// control fields or the JSON-RPC fields is populated, depending on the
// discriminator.
type Envelope struct {
	Type      string          `json:"type,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`

	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// IsControl reports whether the envelope carries a control-plane message.
func (e *Envelope) IsControl() bool {
	return e.Type != ""
}

// ControlRequest is a decoded control_request envelope.
type ControlRequest struct {
	RequestID string
	Payload   ControlPayload
}

// ControlResponse is the body written back for a control request. Exactly
// one of Result or Error is set.
type ControlResponse struct {
	Subtype Subtype `json:"subtype,omitempty"`
	Result  any     `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// responseEnvelope is the full control_response wire shape.
type responseEnvelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Response  ControlResponse `json:"response"`
}

// EncodeResponse serializes a control response for the given request id.
func EncodeResponse(requestID string, resp ControlResponse) ([]byte, error) {
	return json.Marshal(responseEnvelope{
		Type:      TypeControlResponse,
		RequestID: requestID,
		Response:  resp,
	})
}

// DecodeEnvelope parses one wire line into an Envelope. The line must be a
// JSON object carrying a "type" or "method" discriminator, or a JSON-RPC
// response id; anything else is a ParseError scoped to that line.
func DecodeEnvelope(line []byte) (*Envelope, error) {
	var probe any
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "invalid JSON on control stream", Cause: err},
			Line:        string(line),
		}
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, &ParseError{
			EngineError: EngineError{Message: "control message is not a JSON object"},
			Line:        string(line),
		}
	}

	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &ParseError{
			EngineError: EngineError{Message: "malformed control message", Cause: err},
			Line:        string(line),
		}
	}
	// JSON-RPC responses carry neither discriminator, only an id.
	if env.Type == "" && env.Method == "" && !(env.JSONRPC != "" && env.ID != nil) {
		return nil, &ParseError{
			EngineError: EngineError{Message: "control message missing 'type' or 'method' discriminator"},
			Line:        string(line),
		}
	}
	return &env, nil
}

// DecodeControlRequest decodes the request body of a control_request
// envelope into its typed payload.
func DecodeControlRequest(env *Envelope) (*ControlRequest, error) {
	if env.Type != TypeControlRequest {
		return nil, &ParseError{
			EngineError: EngineError{Message: fmt.Sprintf("not a control_request: %s", env.Type)},
		}
	}
	if env.RequestID == "" {
		return nil, &ParseError{
			EngineError: EngineError{Message: "control_request missing requestId"},
		}
	}
	payload, err := DecodePayload(env.Request)
	if err != nil {
		return nil, err
	}
	return &ControlRequest{RequestID: env.RequestID, Payload: payload}, nil
}
