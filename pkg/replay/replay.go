// Package replay reconstructs the emitted-event sequence of a persisted
// session. The replayer drives the same emitter interfaces the live
// pipeline uses, so a consumer cannot tell a replayed stream from a live
// one. Replay is a strict subset of the original stream: records the live
// pipeline never emitted for (system, telemetry) are skipped, never
// synthesized.
package replay

import (
	"fmt"

	"github.com/codeplane/codeplane/pkg/record"
)

// MessageEmitter receives replayed message text. thought marks reasoning
// content.
type MessageEmitter interface {
	EmitMessage(role, text string, thought bool)
}

// ToolCallEmitter receives replayed tool-call boundaries.
type ToolCallEmitter interface {
	EmitToolCallStart(callID, toolName string, args map[string]any)
	EmitToolCallResult(callID, toolName string, success bool, display any)
}

// Emitters bundles the sinks a replay drives. Both fields are required.
type Emitters struct {
	Messages  MessageEmitter
	ToolCalls ToolCallEmitter
}

// Replayer replays stored chat records through a set of emitters.
type Replayer struct {
	emitters Emitters
}

// NewReplayer creates a replayer over the given emitters.
func NewReplayer(emitters Emitters) *Replayer {
	return &Replayer{emitters: emitters}
}

// Replay iterates records in stored order and re-emits them. user and
// assistant records replay part by part; tool_result records replay
// through the result emitter unless they carry no parts; every other role
// is skipped.
func (r *Replayer) Replay(records []record.ChatRecord) {
	synth := 0
	for i := range records {
		rec := &records[i]
		switch rec.Role {
		case record.RoleUser, record.RoleAssistant:
			r.replayMessage(rec, &synth)
		case record.RoleToolResult:
			r.replayToolResult(rec)
		default:
			// system, telemetry and the like never reached the live
			// emitters either.
		}
	}
}

// replayMessage emits one record's parts. Records stored without a call
// id get one synthesized from a per-replay counter, so replaying the same
// records always yields the same ids.
func (r *Replayer) replayMessage(rec *record.ChatRecord, synth *int) {
	for _, part := range rec.Parts {
		switch p := part.(type) {
		case record.TextPart:
			r.emitters.Messages.EmitMessage(rec.Role, p.Text, p.Thought)
		case record.FunctionCallPart:
			id := p.ID
			if id == "" {
				id = fmt.Sprintf("call-synth-%d", *synth)
				*synth++
			}
			r.emitters.ToolCalls.EmitToolCallStart(id, p.Name, p.Args)
		}
	}
}

func (r *Replayer) replayToolResult(rec *record.ChatRecord) {
	if len(rec.Parts) == 0 {
		return
	}
	r.emitters.ToolCalls.EmitToolCallResult(rec.CallID, rec.ResponseName(), rec.Success, rec.Display)
}
