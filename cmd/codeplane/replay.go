package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeplane/codeplane/pkg/history"
	"github.com/codeplane/codeplane/pkg/replay"
	"github.com/codeplane/codeplane/pkg/wire"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-file>",
	Short: "Replay a persisted session as an NDJSON event stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(args[0])
	},
}

func runReplay(path string) error {
	store, err := history.Load(path)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	emitter := &ndjsonEmitter{w: wire.NewWriter(os.Stdout)}
	replayer := replay.NewReplayer(replay.Emitters{
		Messages:  emitter,
		ToolCalls: emitter,
	})
	replayer.Replay(store.Records())
	return emitter.err
}

// ndjsonEmitter writes replayed events one JSON object per line, the same
// framing a live connection uses. The first write error sticks; later
// events are dropped.
type ndjsonEmitter struct {
	w   *wire.Writer
	err error
}

type replayEvent struct {
	Type    string         `json:"type"`
	Role    string         `json:"role,omitempty"`
	Text    string         `json:"text,omitempty"`
	Thought bool           `json:"thought,omitempty"`
	CallID  string         `json:"toolCallId,omitempty"`
	Tool    string         `json:"toolName,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Success bool           `json:"success,omitempty"`
	Display any            `json:"display,omitempty"`
}

func (e *ndjsonEmitter) emit(event replayEvent) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteLine(event)
}

func (e *ndjsonEmitter) EmitMessage(role, text string, thought bool) {
	e.emit(replayEvent{Type: "message", Role: role, Text: text, Thought: thought})
}

func (e *ndjsonEmitter) EmitToolCallStart(callID, toolName string, args map[string]any) {
	e.emit(replayEvent{Type: "tool_call_start", CallID: callID, Tool: toolName, Args: args})
}

func (e *ndjsonEmitter) EmitToolCallResult(callID, toolName string, success bool, display any) {
	e.emit(replayEvent{Type: "tool_call_result", CallID: callID, Tool: toolName, Success: success, Display: display})
}
