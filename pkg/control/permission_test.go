package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeplane/codeplane/pkg/protocol"
	"github.com/codeplane/codeplane/pkg/toolcall"
)

func TestSuggestionOptionsPreserveInputOrder(t *testing.T) {
	suggestions := []protocol.PermissionOpt{
		{OptionID: "z", Name: "Last first", Kind: protocol.PermissionRejectOnce},
		{OptionID: "a", Name: "Then this", Kind: protocol.PermissionAllowOnce},
		{OptionID: "m", Name: "Then that", Kind: protocol.PermissionAllowAlways},
	}
	opts := SuggestionOptions(&protocol.CanUseToolRequest{
		ToolName:    "bash",
		Suggestions: suggestions,
	})
	assert.Equal(t, suggestions, opts)
}

func TestSuggestionOptionsInvalidInput(t *testing.T) {
	assert.Nil(t, SuggestionOptions(nil))
	assert.Nil(t, SuggestionOptions(&protocol.CanUseToolRequest{ToolName: "  "}))
	assert.Nil(t, SuggestionOptions(&protocol.CanUseToolRequest{
		ToolName:    "bash",
		Suggestions: []protocol.PermissionOpt{{OptionID: "x"}}, // missing kind
	}))
	assert.Nil(t, SuggestionOptions(&protocol.CanUseToolRequest{
		ToolName:    "bash",
		Suggestions: []protocol.PermissionOpt{{Kind: protocol.PermissionAllowOnce}}, // missing id
	}))
}

func TestSuggestionOptionsDefaults(t *testing.T) {
	opts := SuggestionOptions(&protocol.CanUseToolRequest{ToolName: "bash"})
	require.Len(t, opts, 3)
	assert.Equal(t, protocol.PermissionAllowOnce, opts[0].Kind)
	assert.Equal(t, protocol.PermissionAllowAlways, opts[1].Kind)
	assert.Equal(t, protocol.PermissionRejectOnce, opts[2].Kind)
}

func TestCanUseToolAllowAndDeny(t *testing.T) {
	f := newFixture()

	outcomes := map[string]*protocol.PermissionOutcome{
		"allow":  {Outcome: "selected", OptionID: "allow"},
		"reject": {Outcome: "selected", OptionID: "reject"},
		"cancel": {Outcome: "rejected"},
	}
	var nextOutcome string
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		return outcomes[nextOutcome], nil
	})

	nextOutcome = "allow"
	decision, err := f.permission.CanUseTool(context.Background(), &protocol.CanUseToolRequest{
		ToolName: "bash",
		Input:    map[string]any{"command": "ls"},
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.BehaviorAllow, decision.Behavior)
	assert.Equal(t, "ls", decision.UpdatedInput["command"])

	for _, name := range []string{"reject", "cancel"} {
		nextOutcome = name
		decision, err = f.permission.CanUseTool(context.Background(), &protocol.CanUseToolRequest{ToolName: "bash"})
		require.NoError(t, err)
		assert.Equal(t, protocol.BehaviorDeny, decision.Behavior)
		assert.Contains(t, decision.Message, "rejected")
	}
}

func TestCanUseToolBypassMode(t *testing.T) {
	f := newFixture()
	f.runtime.OnSetApprovalMode(func(string) error { return nil })
	require.NoError(t, f.runtime.SetApprovalMode("bypassPermissions"))

	// No requester installed; bypass mode decides locally.
	decision, err := f.permission.CanUseTool(context.Background(), &protocol.CanUseToolRequest{ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, protocol.BehaviorAllow, decision.Behavior)
}

func TestCanUseToolUnknownOptionDenies(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		return &protocol.PermissionOutcome{Outcome: "selected", OptionID: "no-such-option"}, nil
	})

	decision, err := f.permission.CanUseTool(context.Background(), &protocol.CanUseToolRequest{ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, protocol.BehaviorDeny, decision.Behavior)
}

func TestSetPermissionMode(t *testing.T) {
	f := newFixture()

	resp := submit(t, f, "mode-1", &protocol.SetPermissionModeRequest{Mode: "plan"})
	assert.Contains(t, resp.Error, "not supported")

	f.runtime.OnSetApprovalMode(func(string) error { return nil })
	resp = submit(t, f, "mode-2", &protocol.SetPermissionModeRequest{Mode: "plan"})
	require.Empty(t, resp.Error)
	result := resp.Result.(*protocol.SetPermissionModeResult)
	assert.Equal(t, "plan", result.Mode)
	assert.Equal(t, "plan", f.runtime.PermissionMode())
}

func waitForStatus(t *testing.T, tracker *toolcall.Tracker, id string, want toolcall.Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if call, ok := tracker.Get(id); ok && call.Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	call, _ := tracker.Get(id)
	t.Fatalf("tool call %s stuck at %s, want %s", id, call.Status, want)
}

func TestTrackerListenerRequestsPermission(t *testing.T) {
	f := newFixture()
	var sent protocol.PermissionRequest
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		sent = req
		return &protocol.PermissionOutcome{Outcome: "selected", OptionID: "allow"}, nil
	})

	tracker := toolcall.NewTracker()
	tracker.Subscribe(f.permission.TrackerListener(tracker, "sess-1", testTimeouts()))

	require.NoError(t, tracker.Begin("tc-1", "bash", map[string]any{"command": "ls"}))
	require.NoError(t, tracker.Transition("tc-1", toolcall.StatusAwaitingApproval))

	waitForStatus(t, tracker, "tc-1", toolcall.StatusApproved)
	assert.Equal(t, "sess-1", sent.SessionID)
	assert.Equal(t, "tc-1", sent.ToolCall.ToolCallID)
	require.NotEmpty(t, sent.Options)
}

func TestTrackerListenerDeniesOnRejection(t *testing.T) {
	f := newFixture()
	f.permission.SetRequester(func(ctx context.Context, req protocol.PermissionRequest) (*protocol.PermissionOutcome, error) {
		return &protocol.PermissionOutcome{Outcome: "rejected"}, nil
	})

	tracker := toolcall.NewTracker()
	tracker.Subscribe(f.permission.TrackerListener(tracker, "sess-1", testTimeouts()))

	require.NoError(t, tracker.Begin("tc-1", "bash", nil))
	require.NoError(t, tracker.Transition("tc-1", toolcall.StatusAwaitingApproval))

	waitForStatus(t, tracker, "tc-1", toolcall.StatusDenied)
	call, _ := tracker.Get("tc-1")
	assert.Equal(t, toolcall.StatusDenied, call.Decision)
}

func TestTrackerListenerBypassAutoApproves(t *testing.T) {
	f := newFixture()
	f.runtime.OnSetApprovalMode(func(string) error { return nil })
	require.NoError(t, f.runtime.SetApprovalMode("bypassPermissions"))

	tracker := toolcall.NewTracker()
	tracker.Subscribe(f.permission.TrackerListener(tracker, "sess-1", testTimeouts()))

	require.NoError(t, tracker.Begin("tc-1", "bash", nil))
	require.NoError(t, tracker.Transition("tc-1", toolcall.StatusAwaitingApproval))

	// Bypass mode approves synchronously inside the listener.
	call, _ := tracker.Get("tc-1")
	assert.Equal(t, toolcall.StatusApproved, call.Status)
}
