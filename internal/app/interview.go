package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/studymate/internal/gemini"
	"github.com/rbright/studymate/internal/indicator"
	"github.com/rbright/studymate/internal/ipc"
	"github.com/rbright/studymate/internal/session"
	"github.com/rbright/studymate/internal/store"
	"github.com/rbright/studymate/internal/transcript"
)

const ipcTimeout = 220 * time.Millisecond

func (r Runner) commandInterview(ctx context.Context, e env) int {
	apiKey, ok := r.apiKey(e)
	if !ok {
		return 1
	}
	client, ok := r.geminiClient(ctx, e, apiKey)
	if !ok {
		return 1
	}
	cfg := e.loaded.Config

	var greeter session.Greeter
	if cfg.Interview.GreetingEnable && !e.parsed.NoGreeting {
		greeter = session.GreeterFunc(client.Greeter(cfg.Interview.Greeting))
	}
	notifier := indicator.New(cfg.Indicator, r.Stdout, e.logger)
	controller := session.NewController(
		e.logger,
		r.opener(cfg, apiKey, e.logger),
		e.store,
		notifier,
		greeter,
	)

	if socketPath, err := ipc.RuntimeSocketPath(); err != nil {
		e.logger.Warn("control socket unavailable; stop with Ctrl-C", "error", err.Error())
	} else {
		listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
		if err != nil {
			if errors.Is(err, ipc.ErrAlreadyRunning) {
				fmt.Fprintln(r.Stderr, "error: an interview is already running; use `studymate stop`")
				return 1
			}
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() { _ = os.Remove(socketPath) }()
		defer serveControl(ctx, e.logger, listener, controller)()
	}

	result := controller.Run(ctx)
	controller.Close()
	logSessionResult(e.logger, result)

	if result.Err != nil {
		notifier.Wait()
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "%d turns saved\n", result.Turns)

	code := 0
	if e.parsed.Feedback && result.FeedbackAvailable {
		code = r.printFeedback(context.WithoutCancel(ctx), client, controller.History())
		if code == 0 {
			notifier.CueComplete(ctx)
		}
	}
	notifier.Wait()
	return code
}

// serveControl answers IPC commands on listener and returns the shutdown func.
func serveControl(ctx context.Context, logger *slog.Logger, listener net.Listener, handler ipc.Handler) func() {
	serverCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- ipc.Serve(serverCtx, listener, handler, logger)
	}()
	return func() {
		cancel()
		if err := <-done; err != nil {
			logger.Error("ipc server failed", "error", err.Error())
		}
	}
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	fields := []any{
		"state", result.State,
		"session", result.SessionID,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"turns", result.Turns,
		"feedback_available", result.FeedbackAvailable,
	}
	if result.Err != nil {
		logger.Error("interview failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("interview complete", fields...)
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	resp, err := ipc.Call(ctx, socketPath, ipc.CommandStatus, ipcTimeout)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	state := resp.State
	if state == "" {
		state = "idle"
	}
	if resp.Message != "" {
		fmt.Fprintf(r.Stdout, "%s (%s)\n", state, resp.Message)
		return 0
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

func (r Runner) commandStop(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	resp, err := ipc.Call(ctx, socketPath, ipc.CommandStop, ipcTimeout)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stderr, "error: no interview is running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandHistory(e env) int {
	if len(e.parsed.Args) == 1 {
		if err := e.store.ClearHistory(); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		fmt.Fprintln(r.Stdout, "interview history cleared")
		return 0
	}

	turns, ok := r.loadTurns(e)
	if !ok {
		return 1
	}
	if len(turns) == 0 {
		fmt.Fprintln(r.Stdout, "no interview history")
		return 0
	}
	fmt.Fprintln(r.Stdout, transcript.FormatForFeedback(turns))
	return 0
}

func (r Runner) commandFeedback(ctx context.Context, e env) int {
	turns, ok := r.loadTurns(e)
	if !ok {
		return 1
	}
	if len(turns) == 0 {
		fmt.Fprintln(r.Stderr, "error: no interview history; run `studymate interview` first")
		return 1
	}
	apiKey, ok := r.apiKey(e)
	if !ok {
		return 1
	}
	client, ok := r.geminiClient(ctx, e, apiKey)
	if !ok {
		return 1
	}
	return r.printFeedback(ctx, client, turns)
}

func (r Runner) printFeedback(ctx context.Context, client *gemini.Client, turns []transcript.Turn) int {
	fmt.Fprintln(r.Stdout, "Generating feedback…")
	feedback, err := client.Feedback(ctx, turns)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, strings.TrimSpace(feedback))
	return 0
}

// loadTurns reads saved history; a corrupt value is reported and treated as empty.
func (r Runner) loadTurns(e env) ([]transcript.Turn, bool) {
	turns, err := e.store.LoadHistory()
	var readErr *store.PersistenceReadError
	switch {
	case err == nil:
		return turns, true
	case errors.As(err, &readErr):
		e.logger.Warn("interview history unreadable", "error", err.Error())
		fmt.Fprintln(r.Stderr, "warning: saved interview history is unreadable; ignoring it")
		return nil, true
	default:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return nil, false
	}
}
