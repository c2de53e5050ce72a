package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplane/codeplane/pkg/protocol"
	"github.com/codeplane/codeplane/pkg/updates"
	"github.com/codeplane/codeplane/pkg/wire"
)

// engineHarness runs an engine over in-memory pipes and exposes the remote
// side of the connection.
type engineHarness struct {
	t       *testing.T
	f       *fixture
	engine  *Engine
	in      io.WriteCloser
	out     *bufio.Scanner
	updates updates.Callbacks
	done    chan error
}

func newEngineHarness(t *testing.T, callbacks updates.Callbacks) *engineHarness {
	t.Helper()
	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()

	f := newFixture()
	log := testLogger()
	h := &engineHarness{
		t:    t,
		f:    f,
		in:   inWriter,
		out:  bufio.NewScanner(outReader),
		done: make(chan error, 1),
	}
	h.engine = NewEngine(
		wire.NewReader(inReader),
		wire.NewWriter(outWriter),
		f.dispatcher,
		updates.NewDispatcher(callbacks, log),
		log,
	)
	f.permission.SetRequester(h.engine.PermissionRequester())

	go func() { h.done <- h.engine.Run(context.Background()) }()
	t.Cleanup(func() {
		inWriter.Close()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Error("engine did not stop after input close")
		}
	})
	return h
}

func (h *engineHarness) send(line string) {
	h.t.Helper()
	if _, err := io.WriteString(h.in, line+"\n"); err != nil {
		h.t.Fatalf("send: %v", err)
	}
}

func (h *engineHarness) readLine() map[string]any {
	h.t.Helper()
	lineCh := make(chan string, 1)
	go func() {
		if h.out.Scan() {
			lineCh <- h.out.Text()
		}
	}()
	select {
	case line := <-lineCh:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			h.t.Fatalf("bad output line %q: %v", line, err)
		}
		return decoded
	case <-time.After(time.Second):
		h.t.Fatal("no output line within deadline")
		return nil
	}
}

func TestEngineRecoversFromMalformedLine(t *testing.T) {
	h := newEngineHarness(t, updates.Callbacks{})

	h.send(`{this is not json`)
	h.send(`{"type":"control_request","requestId":"r1","request":{"subtype":"supported_commands"}}`)

	resp := h.readLine()
	assert.Equal(t, "control_response", resp["type"])
	assert.Equal(t, "r1", resp["requestId"])
	body := resp["response"].(map[string]any)
	require.Empty(t, body["error"])
	result := body["result"].(map[string]any)
	assert.Len(t, result["commands"], len(protocol.Subtypes()))
}

func TestEngineRejectsUnknownSubtype(t *testing.T) {
	h := newEngineHarness(t, updates.Callbacks{})

	h.send(`{"type":"control_request","requestId":"r1","request":{"subtype":"frobnicate"}}`)

	resp := h.readLine()
	assert.Equal(t, "r1", resp["requestId"])
	body := resp["response"].(map[string]any)
	assert.Contains(t, body["error"], "unsupported control request subtype")
}

func TestEngineEchoesSubtypeOnDecodeFailure(t *testing.T) {
	h := newEngineHarness(t, updates.Callbacks{})

	// Body names a subtype but the payload does not decode.
	h.send(`{"type":"control_request","requestId":"r1","request":{"subtype":"set_model","model":5}}`)

	resp := h.readLine()
	assert.Equal(t, "r1", resp["requestId"])
	body := resp["response"].(map[string]any)
	assert.Equal(t, "set_model", body["subtype"])
	assert.NotEmpty(t, body["error"])

	// When no subtype can be probed the field stays off the wire.
	h.send(`{"type":"control_request","requestId":"r2","request":42}`)

	resp = h.readLine()
	assert.Equal(t, "r2", resp["requestId"])
	body = resp["response"].(map[string]any)
	_, present := body["subtype"]
	assert.False(t, present)
	assert.NotEmpty(t, body["error"])
}

func TestEngineRoutesSessionUpdates(t *testing.T) {
	chunks := make(chan string, 1)
	h := newEngineHarness(t, updates.Callbacks{
		OnAgentChunk: func(text string) { chunks <- text },
	})

	h.send(`{"jsonrpc":"2.0","method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"hi"}}}}`)

	select {
	case text := <-chunks:
		assert.Equal(t, "hi", text)
	case <-time.After(time.Second):
		t.Fatal("chunk not delivered")
	}
}

func TestEnginePermissionRoundTrip(t *testing.T) {
	h := newEngineHarness(t, updates.Callbacks{})

	h.send(`{"type":"control_request","requestId":"r1","request":{"subtype":"can_use_tool","toolName":"bash","input":{"command":"ls"}}}`)

	// The engine asks the remote side for permission first.
	ask := h.readLine()
	assert.Equal(t, "session/request_permission", ask["method"])
	params := ask["params"].(map[string]any)
	options := params["options"].([]any)
	require.NotEmpty(t, options)
	first := options[0].(map[string]any)

	h.send(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":"%v","result":{"outcome":{"outcome":"selected","optionId":"%v"}}}`,
		ask["id"], first["optionId"],
	))

	resp := h.readLine()
	assert.Equal(t, "control_response", resp["type"])
	assert.Equal(t, "r1", resp["requestId"])
	body := resp["response"].(map[string]any)
	require.Empty(t, body["error"])
	result := body["result"].(map[string]any)
	assert.Equal(t, "allow", result["behavior"])
}

func TestEngineCancellation(t *testing.T) {
	h := newEngineHarness(t, updates.Callbacks{})

	h.send(`{"type":"control_request","requestId":"r1","request":{"subtype":"can_use_tool","toolName":"bash"}}`)

	// Permission request goes out; cancel the control request instead of
	// answering.
	ask := h.readLine()
	require.Equal(t, "session/request_permission", ask["method"])

	h.send(`{"type":"control_cancel_request","requestId":"r1"}`)

	resp := h.readLine()
	assert.Equal(t, "r1", resp["requestId"])
	body := resp["response"].(map[string]any)
	assert.Contains(t, body["error"], "cancelled")
}
