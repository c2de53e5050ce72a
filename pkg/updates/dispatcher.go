// Package updates fans inbound session/update notifications out to
// registered callbacks. Callbacks are optional; the dispatcher falls back
// to more generic ones so streamed content is never silently dropped.
package updates

import (
	"fmt"
	"strings"

	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
)

// Callbacks holds the handlers a consumer registers for session updates.
// Any field may be nil.
type Callbacks struct {
	// OnUserChunk receives user_message_chunk text.
	OnUserChunk func(text string)
	// OnAgentChunk receives agent_message_chunk text. Also the fallback
	// target for thoughts and plans when their dedicated handlers are nil.
	OnAgentChunk func(text string)
	// OnThoughtChunk receives agent_thought_chunk text.
	OnThoughtChunk func(text string)
	// OnToolCall receives tool_call creation events.
	OnToolCall func(update protocol.SessionUpdate)
	// OnToolCallUpdate receives tool_call_update progress events.
	OnToolCallUpdate func(update protocol.SessionUpdate)
	// OnPlan receives structured plan updates.
	OnPlan func(entries []protocol.PlanEntry)
	// OnModeChange receives current_mode_update mode ids.
	OnModeChange func(modeID string)
	// OnUsage receives usage metadata stripped from message chunks.
	OnUsage func(usage protocol.UsageMeta)
}

// Dispatcher routes session updates to callbacks in arrival order.
type Dispatcher struct {
	callbacks Callbacks
	log       *logger.Logger
}

// NewDispatcher creates a dispatcher with the given callbacks.
func NewDispatcher(callbacks Callbacks, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Dispatcher{callbacks: callbacks, log: log}
}

// Handle routes one session update. Unknown kinds and malformed mode
// updates are logged and skipped; Handle only returns an error when a
// tool-call update is structurally unusable.
func (d *Dispatcher) Handle(update *protocol.SessionUpdate) error {
	switch update.Kind {
	case protocol.UpdateUserMessageChunk:
		d.forwardUsage(update)
		if d.callbacks.OnUserChunk != nil {
			d.callbacks.OnUserChunk(chunkText(update))
		}
		return nil

	case protocol.UpdateAgentMessageChunk:
		d.forwardUsage(update)
		if d.callbacks.OnAgentChunk != nil {
			d.callbacks.OnAgentChunk(chunkText(update))
		}
		return nil

	case protocol.UpdateAgentThoughtChunk:
		d.forwardUsage(update)
		if d.callbacks.OnThoughtChunk != nil {
			d.callbacks.OnThoughtChunk(chunkText(update))
		} else if d.callbacks.OnAgentChunk != nil {
			// No thought handler registered, deliver as a plain chunk.
			d.callbacks.OnAgentChunk(chunkText(update))
		}
		return nil

	case protocol.UpdateToolCall:
		if update.ToolCallID == "" {
			return fmt.Errorf("tool_call update missing toolCallId")
		}
		if d.callbacks.OnToolCall != nil {
			d.callbacks.OnToolCall(*update)
		}
		return nil

	case protocol.UpdateToolCallUpdate:
		if update.ToolCallID == "" {
			return fmt.Errorf("tool_call_update missing toolCallId")
		}
		if d.callbacks.OnToolCallUpdate != nil {
			d.callbacks.OnToolCallUpdate(*update)
		}
		return nil

	case protocol.UpdatePlan:
		if d.callbacks.OnPlan != nil {
			d.callbacks.OnPlan(update.Entries)
		} else if d.callbacks.OnAgentChunk != nil {
			d.callbacks.OnAgentChunk(FormatPlan(update.Entries))
		}
		return nil

	case protocol.UpdateCurrentMode:
		if update.CurrentModeID == "" {
			// Malformed mode updates must not take the session down.
			d.log.Warn("dropping current_mode_update with empty mode id (session %s)", update.SessionID)
			return nil
		}
		if d.callbacks.OnModeChange != nil {
			d.callbacks.OnModeChange(update.CurrentModeID)
		}
		return nil

	default:
		d.log.Warn("ignoring session update of unknown kind %q", update.Kind)
		return nil
	}
}

func (d *Dispatcher) forwardUsage(update *protocol.SessionUpdate) {
	if update.Usage != nil && d.callbacks.OnUsage != nil {
		d.callbacks.OnUsage(*update.Usage)
	}
}

func chunkText(update *protocol.SessionUpdate) string {
	if update.Content == nil {
		return ""
	}
	return update.Content.Text
}

// FormatPlan renders plan entries as display text for consumers without a
// structured plan handler.
func FormatPlan(entries []protocol.PlanEntry) string {
	if len(entries) == 0 {
		return "Plan updated."
	}
	var b strings.Builder
	b.WriteString("Plan:\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. ", i+1)
		if entry.Status != "" {
			fmt.Fprintf(&b, "[%s] ", entry.Status)
		}
		b.WriteString(entry.Content)
		if i < len(entries)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
