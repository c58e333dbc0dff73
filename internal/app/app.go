// Package app is the studymate composition root: it parses the command
// line, loads config, and wires every component for the chosen command.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rbright/studymate/internal/audio"
	"github.com/rbright/studymate/internal/cli"
	"github.com/rbright/studymate/internal/config"
	"github.com/rbright/studymate/internal/doctor"
	"github.com/rbright/studymate/internal/gemini"
	"github.com/rbright/studymate/internal/logging"
	"github.com/rbright/studymate/internal/pipeline"
	"github.com/rbright/studymate/internal/session"
	"github.com/rbright/studymate/internal/store"
	"github.com/rbright/studymate/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *slog.Logger

	newOpener func(cfg config.Config, apiKey string, logger *slog.Logger) session.Opener
}

// env is everything a command needs after config and logging are set up.
type env struct {
	parsed    cli.Parsed
	loaded    config.Loaded
	logger    *slog.Logger
	store     *store.Store
	configDir string
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Stdin: os.Stdin}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("studymate"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("studymate"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	e := env{
		parsed:    parsed,
		loaded:    cfgLoaded,
		logger:    logger,
		configDir: filepath.Dir(cfgLoaded.Path),
	}

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx, cfgLoaded.Config.Audio.Backend)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	}

	st, err := openStore(cfgLoaded.Config, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	e.store = st

	switch parsed.Command {
	case cli.CommandHistory:
		return r.commandHistory(e)
	case cli.CommandProfile:
		return r.commandProfile(ctx, e)
	case cli.CommandInterview:
		return r.commandInterview(ctx, e)
	case cli.CommandFeedback:
		return r.commandFeedback(ctx, e)
	case cli.CommandChat:
		return r.commandChat(ctx, e)
	case cli.CommandTimetable:
		return r.commandTimetable(ctx, e)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func openStore(cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	path, err := store.ResolvePath(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return store.Open(path, logger)
}

// apiKey resolves the Gemini key or reports why it is missing.
func (r Runner) apiKey(e env) (string, bool) {
	key, err := config.ResolveAPIKey(e.loaded.Config.Gemini, e.configDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v (set %s or add it to %s)\n", err, e.loaded.Config.Gemini.APIKeyEnv, e.loaded.Config.Gemini.EnvFile)
		return "", false
	}
	return key, true
}

func (r Runner) geminiClient(ctx context.Context, e env, apiKey string) (*gemini.Client, bool) {
	g := e.loaded.Config.Gemini
	client, err := gemini.New(ctx, gemini.Config{
		APIKey:    apiKey,
		BaseURL:   g.BaseURL,
		ChatModel: g.ChatModel,
		ProModel:  g.ProModel,
		TTSModel:  g.TTSModel,
		Voice:     g.Voice,
	}, e.logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return nil, false
	}
	return client, true
}

func (r Runner) opener(cfg config.Config, apiKey string, logger *slog.Logger) session.Opener {
	if r.newOpener != nil {
		return r.newOpener(cfg, apiKey, logger)
	}
	return pipeline.NewInterview(cfg, apiKey, logger)
}

func (r Runner) commandDevices(ctx context.Context, backend string) int {
	devices, err := audio.ListDevices(ctx, backend)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
