package control

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplane/codeplane/pkg/config"
	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
)

func testLogger() *logger.Logger {
	log := logger.NewDefaultLogger()
	log.SetConsoleWriter(io.Discard)
	return log
}

func testTimeouts() Timeouts {
	return Timeouts{
		Generic:    200 * time.Millisecond,
		Initialize: 200 * time.Millisecond,
		Permission: 200 * time.Millisecond,
		Mcp:        200 * time.Millisecond,
	}
}

type fixture struct {
	sess       *SessionContext
	runtime    *config.Runtime
	system     *SystemController
	permission *PermissionController
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	log := testLogger()
	sess := NewSessionContext()
	runtime := config.NewRuntime(&config.Config{
		Model:      config.ModelConfig{ID: "qwen3-coder-plus"},
		Permission: config.PermissionConfig{Mode: "default"},
	})
	system := NewSystemController(sess, runtime, log)
	permission := NewPermissionController(sess, runtime, log)
	return &fixture{
		sess:       sess,
		runtime:    runtime,
		system:     system,
		permission: permission,
		dispatcher: NewDispatcher(system, permission, testTimeouts(), log),
	}
}

func (f *fixture) pendingCount() int {
	n := 0
	f.dispatcher.pending.Range(func(any, any) bool { n++; return true })
	return n
}

func submit(t *testing.T, f *fixture, id string, payload protocol.ControlPayload) protocol.ControlResponse {
	t.Helper()
	return f.dispatcher.Submit(context.Background(), &protocol.ControlRequest{
		RequestID: id,
		Payload:   payload,
	})
}

func TestSupportedCommands(t *testing.T) {
	f := newFixture()
	resp := submit(t, f, "req-1", &protocol.SupportedCommandsRequest{})

	require.Empty(t, resp.Error)
	result, ok := resp.Result.(*protocol.SupportedCommandsResult)
	require.True(t, ok)
	assert.Equal(t, protocol.Subtypes(), result.Commands)
	assert.Equal(t, 0, f.pendingCount())
}

func TestSetModelBlankNeverReachesMutator(t *testing.T) {
	f := newFixture()
	calls := 0
	f.runtime.OnSetModel(func(string) error { calls++; return nil })

	for _, model := range []string{"", "   ", "\t\n"} {
		resp := submit(t, f, "req-"+model, &protocol.SetModelRequest{Model: model})
		assert.Contains(t, resp.Error, "Invalid model")
		assert.Nil(t, resp.Result)
	}
	assert.Equal(t, 0, calls)

	resp := submit(t, f, "req-ok", &protocol.SetModelRequest{Model: "qwen3-coder-plus"})
	require.Empty(t, resp.Error)
	assert.Equal(t, 1, calls)
}

func TestInterruptInvokesCallbackOncePerCall(t *testing.T) {
	f := newFixture()
	calls := 0
	f.sess.SetInterrupt(func() { calls++ })

	// No active cancellation token installed; interrupt still succeeds.
	for i := 0; i < 2; i++ {
		resp := submit(t, f, "req-int", &protocol.InterruptRequest{})
		require.Empty(t, resp.Error)
		result, ok := resp.Result.(*protocol.InterruptResult)
		require.True(t, ok)
		assert.Equal(t, protocol.SubtypeInterrupt, result.Subtype)
	}
	assert.Equal(t, 2, calls)
}

func TestCancelPendingRequest(t *testing.T) {
	f := newFixture()
	started := make(chan struct{})
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan protocol.ControlResponse, 1)
	go func() {
		done <- submit(t, f, "req-cancel", &protocol.CanUseToolRequest{ToolName: "bash"})
	}()

	<-started
	f.dispatcher.HandleCancel("req-cancel")

	resp := <-done
	assert.Contains(t, resp.Error, "cancelled")
	assert.Equal(t, 0, f.pendingCount())
}

func TestCancelUnknownIDIsNoOp(t *testing.T) {
	f := newFixture()
	f.dispatcher.HandleCancel("never-seen")
	f.dispatcher.HandleCancel("never-seen")
}

func TestRequestTimesOut(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	resp := submit(t, f, "req-slow", &protocol.CanUseToolRequest{ToolName: "bash"})
	assert.Contains(t, resp.Error, "timed out")
	assert.Equal(t, 0, f.pendingCount())
}

func TestExactlyOneOutcomeUnderInterleaving(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		// Roughly half resolve before the cancel lands below.
		if strings.HasSuffix(req.ToolCall.ToolCallID, "0") {
			return &protocol.PermissionOutcome{Outcome: "selected", OptionID: "allow"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})

	const n = 20
	responses := make([]protocol.ControlResponse, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "req-" + string(rune('a'+i))
			responses[i] = submit(t, f, id, &protocol.CanUseToolRequest{
				ToolName:   "bash",
				ToolCallID: "tc-" + string(rune('0'+i%10)),
			})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < n; i++ {
		f.dispatcher.HandleCancel("req-" + string(rune('a'+i)))
	}
	wg.Wait()

	for i, resp := range responses {
		terminal := resp.Error != "" || resp.Result != nil
		assert.True(t, terminal, "request %d has no terminal outcome", i)
	}
	assert.Equal(t, 0, f.pendingCount())
}

func TestDuplicateRequestID(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	go submit(t, f, "dup", &protocol.CanUseToolRequest{ToolName: "bash"})
	time.Sleep(10 * time.Millisecond)

	resp := submit(t, f, "dup", &protocol.CanUseToolRequest{ToolName: "bash"})
	assert.Contains(t, resp.Error, "duplicate requestId")

	f.dispatcher.HandleCancel("dup")
}

func TestMcpMessageWithoutHandler(t *testing.T) {
	f := newFixture()
	resp := submit(t, f, "req-mcp", &protocol.McpMessageRequest{ServerName: "calc"})
	assert.Contains(t, resp.Error, "not supported")
}

func TestShutdownRejectsPending(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan protocol.ControlResponse, 1)
	go func() {
		done <- submit(t, f, "req-pending", &protocol.CanUseToolRequest{ToolName: "bash"})
	}()
	time.Sleep(10 * time.Millisecond)

	f.dispatcher.Shutdown()
	f.dispatcher.Shutdown() // idempotent

	resp := <-done
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, 0, f.pendingCount())
}
