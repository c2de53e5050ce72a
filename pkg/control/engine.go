package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
	"github.com/codeplane/codeplane/pkg/updates"
	"github.com/codeplane/codeplane/pkg/wire"
)

// Engine drives one control-plane connection: it reads envelopes off the
// wire, dispatches control requests, routes session updates, and
// correlates responses to the JSON-RPC calls it sends out.
type Engine struct {
	reader     *wire.Reader
	writer     *wire.Writer
	dispatcher *Dispatcher
	updates    *updates.Dispatcher
	log        *logger.Logger

	nextRPCID  atomic.Uint64
	rpcPending sync.Map // id (string) -> chan json.RawMessage

	streamClose time.Duration
	wg          sync.WaitGroup
}

// NewEngine wires an engine over a framed connection.
func NewEngine(reader *wire.Reader, writer *wire.Writer, dispatcher *Dispatcher, upd *updates.Dispatcher, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Engine{
		reader:      reader,
		writer:      writer,
		dispatcher:  dispatcher,
		updates:     upd,
		log:         log,
		streamClose: defaultStreamCloseTimeout,
	}
}

// SetStreamCloseTimeout bounds the wait for in-flight handlers when the
// connection closes.
func (e *Engine) SetStreamCloseTimeout(d time.Duration) {
	if d > 0 {
		e.streamClose = d
	}
}

// Run processes inbound lines until EOF or ctx cancellation. One line is
// read at a time; request handling runs concurrently so a suspended
// controller never blocks the reader. Malformed lines are logged and
// skipped.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		env, err := e.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var parseErr *protocol.ParseError
			if errors.As(err, &parseErr) {
				e.log.Warn("skipping malformed line: %v", parseErr)
				continue
			}
			return err
		}

		e.handle(ctx, env)
	}
}

func (e *Engine) handle(ctx context.Context, env *protocol.Envelope) {
	switch {
	case env.Type == protocol.TypeControlRequest:
		e.handleControlRequest(ctx, env)

	case env.Type == protocol.TypeControlCancelRequest:
		e.dispatcher.HandleCancel(env.RequestID)

	case env.Method == protocol.MethodSessionUpdate:
		e.handleSessionUpdate(env)

	case env.Method != "" && env.JSONRPC != "":
		e.log.Warn("ignoring unsupported method %q", env.Method)

	case env.JSONRPC != "" && env.ID != nil:
		e.resolveRPC(env)

	default:
		e.log.Warn("ignoring message of type %q", env.Type)
	}
}

func (e *Engine) handleControlRequest(ctx context.Context, env *protocol.Envelope) {
	req, err := protocol.DecodeControlRequest(env)
	if err != nil {
		// The request body is unusable but the envelope named a request
		// id, so the caller still gets a terminal outcome. Echo the
		// subtype when the body is intact enough to name one.
		if env.RequestID != "" {
			var probe struct {
				Subtype protocol.Subtype `json:"subtype"`
			}
			_ = json.Unmarshal(env.Request, &probe)
			e.writeResponse(env.RequestID, protocol.ControlResponse{Subtype: probe.Subtype, Error: err.Error()})
		} else {
			e.log.Warn("dropping control_request without requestId: %v", err)
		}
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		resp := e.dispatcher.Submit(ctx, req)
		e.writeResponse(req.RequestID, resp)
	}()
}

func (e *Engine) handleSessionUpdate(env *protocol.Envelope) {
	if e.updates == nil {
		return
	}
	update, err := protocol.DecodeSessionUpdate(env.Params)
	if err != nil {
		e.log.Warn("dropping malformed session update: %v", err)
		return
	}
	if err := e.updates.Handle(update); err != nil {
		e.log.Warn("session update not delivered: %v", err)
	}
}

func (e *Engine) writeResponse(requestID string, resp protocol.ControlResponse) {
	data, err := protocol.EncodeResponse(requestID, resp)
	if err != nil {
		e.log.Error("encode response for %s: %v", requestID, err)
		return
	}
	if err := e.writer.WriteRaw(data); err != nil {
		e.log.Error("write response for %s: %v", requestID, err)
	}
}

// Call sends an outgoing JSON-RPC request and blocks until the matching
// response line arrives or ctx expires. Responses are matched by id only,
// never by arrival order.
func (e *Engine) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := fmt.Sprintf("cp-%d", e.nextRPCID.Add(1))
	ch := make(chan json.RawMessage, 1)
	e.rpcPending.Store(id, ch)
	defer e.rpcPending.Delete(id)

	body := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := e.writer.WriteLine(body); err != nil {
		return nil, fmt.Errorf("send %s request: %w", method, err)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Notify sends a JSON-RPC notification (no response expected).
func (e *Engine) Notify(method string, params any) error {
	data, err := protocol.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	return e.writer.WriteRaw(data)
}

// PermissionRequester returns the outgoing permission channel backed by
// this engine's connection, for installation on the permission controller.
func (e *Engine) PermissionRequester() PermissionRequester {
	return func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		raw, err := e.Call(ctx, protocol.MethodRequestPermission, req)
		if err != nil {
			return nil, err
		}
		return protocol.DecodePermissionOutcome(raw)
	}
}

func (e *Engine) resolveRPC(env *protocol.Envelope) {
	id := fmt.Sprintf("%v", env.ID)
	value, ok := e.rpcPending.Load(id)
	if !ok {
		e.log.Warn("response for unknown call id %q", id)
		return
	}
	ch := value.(chan json.RawMessage)
	select {
	case ch <- env.Result:
	default:
		// Second response for the same id, drop it.
	}
}

// shutdown rejects pending requests and waits for in-flight handlers to
// write their final responses, up to the stream-close bound.
func (e *Engine) shutdown() {
	e.dispatcher.Shutdown()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(e.streamClose):
		e.log.Warn("handlers still in flight after %s, closing anyway", e.streamClose)
	}
}
