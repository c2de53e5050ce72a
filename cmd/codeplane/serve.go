package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeplane/codeplane/pkg/config"
	"github.com/codeplane/codeplane/pkg/control"
	"github.com/codeplane/codeplane/pkg/history"
	"github.com/codeplane/codeplane/pkg/logger"
	"github.com/codeplane/codeplane/pkg/protocol"
	"github.com/codeplane/codeplane/pkg/record"
	"github.com/codeplane/codeplane/pkg/toolcall"
	"github.com/codeplane/codeplane/pkg/updates"
	"github.com/codeplane/codeplane/pkg/wire"
)

var (
	serveSessionFile string
	serveSessionID   string
	serveDebug       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane engine over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveSessionFile, "session", "", "Transcript file to append session records to (JSONL)")
	serveCmd.Flags().StringVar(&serveSessionID, "session-id", "", "Session id reported on outgoing notifications")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Log controller error causes")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Stdout carries the wire; everything human-readable goes to the
	// logger (stderr and/or file).
	log, err := cfg.Log.CreateLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Close()

	runtime := config.NewRuntime(cfg)
	runtime.OnSetModel(func(id string) error {
		log.Info("model switched to %s", id)
		return nil
	})
	runtime.OnSetApprovalMode(func(mode string) error {
		log.Info("permission mode switched to %s", mode)
		return nil
	})
	if path, err := config.ResolveModelsPath(); err == nil {
		if specs, err := config.LoadModelSpecs(path); err == nil && len(specs) > 0 {
			runtime.SetKnownModels(specs)
		}
	}

	sess := control.NewSessionContext()
	sess.SetDebugMode(serveDebug)
	sess.SetInterrupt(func() {
		log.Info("interrupt requested")
	})

	system := control.NewSystemController(sess, runtime, log)
	permission := control.NewPermissionController(sess, runtime, log)
	timeouts := control.TimeoutsFromConfig(runtime.Timeouts())
	dispatcher := control.NewDispatcher(system, permission, timeouts, log)
	facade := control.NewFacade(dispatcher)
	defer facade.Cleanup()

	store := history.NewStore(serveSessionFile)
	sessionID := serveSessionID
	if sessionID == "" {
		sessionID = store.ID()
	}

	tracker := toolcall.NewTracker()

	var engine *control.Engine
	callbacks := updates.Callbacks{
		OnUserChunk: func(text string) {
			appendRecord(log, store, record.NewUserRecord(text))
		},
		OnAgentChunk: func(text string) {
			appendRecord(log, store, record.NewAssistantRecord(
				record.TextPart{Type: "text", Text: text},
			))
		},
		OnThoughtChunk: func(text string) {
			appendRecord(log, store, record.NewAssistantRecord(
				record.TextPart{Type: "text", Text: text, Thought: true},
			))
		},
		OnToolCall: func(update protocol.SessionUpdate) {
			id := toolcall.EnsureID(update.ToolCallID)
			name := toolcall.NormalizeName(update.ToolName)
			if err := tracker.Begin(id, name, update.RawInput); err != nil {
				log.Warn("tool call not tracked: %v", err)
			}
		},
		OnToolCallUpdate: func(update protocol.SessionUpdate) {
			applyToolCallUpdate(log, tracker, update)
		},
		OnModeChange: func(modeID string) {
			if err := runtime.SetApprovalMode(modeID); err != nil {
				log.Warn("mode update %q not applied: %v", modeID, err)
			}
		},
		OnUsage: func(usage protocol.UsageMeta) {
			log.Debug("usage: in=%d out=%d", usage.InputTokens, usage.OutputTokens)
		},
	}

	engine = control.NewEngine(
		wire.NewReader(os.Stdin),
		wire.NewWriter(os.Stdout),
		dispatcher,
		updates.NewDispatcher(callbacks, log),
		log,
	)
	engine.SetStreamCloseTimeout(timeouts.StreamClose)
	permission.SetRequester(engine.PermissionRequester())
	tracker.Subscribe(permission.TrackerListener(tracker, sessionID, timeouts))
	tracker.Subscribe(func(call toolcall.Call, prev toolcall.Status) {
		// Mirror every status change back out so the embedding side can
		// render progress.
		err := engine.Notify(protocol.MethodSessionUpdate, map[string]any{
			"sessionId": sessionID,
			"update": protocol.SessionUpdate{
				Kind:       protocol.UpdateToolCallUpdate,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Status:     string(call.Status),
			},
		})
		if err != nil {
			log.Warn("tool call status not mirrored: %v", err)
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("engine serving on stdio, session %s", sessionID)
	return engine.Run(ctx)
}

func appendRecord(log *logger.Logger, store *history.Store, rec record.ChatRecord) {
	if err := store.Append(rec); err != nil {
		log.Warn("record not persisted: %v", err)
	}
}

// applyToolCallUpdate maps a remote tool-call status string onto the
// tracker's state machine.
func applyToolCallUpdate(log *logger.Logger, tracker *toolcall.Tracker, update protocol.SessionUpdate) {
	var err error
	switch update.Status {
	case string(toolcall.StatusAwaitingApproval), string(toolcall.StatusApproved),
		string(toolcall.StatusDenied), string(toolcall.StatusExecuting):
		err = tracker.Transition(update.ToolCallID, toolcall.Status(update.Status))
	case string(toolcall.StatusCompleted), string(toolcall.StatusFailed):
		err = tracker.Resolve(update.ToolCallID, toolcall.Status(update.Status), nil)
	case "cancelled":
		tracker.Cancel(update.ToolCallID)
	case "":
		// Progress-only update, nothing to apply.
	default:
		log.Warn("unknown tool call status %q", update.Status)
	}
	if err != nil {
		log.Warn("tool call update %s -> %s rejected: %v", update.ToolCallID, update.Status, err)
	}
}
