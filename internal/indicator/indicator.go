// Package indicator renders interview state to the terminal and desktop
// and plays audio cues.
package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/studymate/internal/config"
	"github.com/rbright/studymate/internal/transcript"
)

type speaker int

const (
	speakerNone speaker = iota
	speakerUser
	speakerModel
)

// Notifier is the session observer used by the interview command.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	out      io.Writer
	cue      func(context.Context, cueKind) error

	mu                    sync.Mutex
	speaking              speaker
	desktopNotificationID uint32
	soundMu               sync.Mutex
	cues                  sync.WaitGroup
}

// New creates a notifier writing terminal output to out.
func New(cfg config.IndicatorConfig, out io.Writer, logger *slog.Logger) *Notifier {
	if out == nil {
		out = io.Discard
	}
	n := &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		out:      out,
	}
	n.cue = func(ctx context.Context, kind cueKind) error {
		return emitCue(ctx, kind, n.cfg)
	}
	return n
}

// ShowConnecting reports the connecting state.
func (n *Notifier) ShowConnecting(ctx context.Context) {
	n.status(n.messages.connecting)
	n.desktop(ctx, 0, n.messages.connecting)
}

// ShowActive reports that the interview is live on device.
func (n *Notifier) ShowActive(ctx context.Context, device string) {
	text := n.messages.active
	if device != "" {
		text = fmt.Sprintf("%s (%s)", text, device)
	}
	n.status(text)
	n.desktop(ctx, 0, n.messages.active)
}

// ShowUserTranscript streams a fragment of the candidate's speech.
func (n *Notifier) ShowUserTranscript(_ context.Context, text string) {
	n.stream(speakerUser, text)
}

// ShowModelTranscript streams a fragment of the interviewer's speech.
func (n *Notifier) ShowModelTranscript(_ context.Context, text string) {
	n.stream(speakerModel, text)
}

// ShowTurn ends the current transcript line.
func (n *Notifier) ShowTurn(context.Context, transcript.Turn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.speaking != speakerNone {
		fmt.Fprintln(n.out)
		n.speaking = speakerNone
	}
}

// ShowError reports a session failure.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	n.status("error: " + text)
	n.desktop(ctx, 4000, text)
}

// ShowStopped reports that the interview ended.
func (n *Notifier) ShowStopped(ctx context.Context, feedbackAvailable bool) {
	text := n.messages.stopped
	if feedbackAvailable {
		text = n.messages.stoppedFeedback
	}
	n.status(text)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismissDesktop)
}

// CueStart emits the start cue.
func (n *Notifier) CueStart(ctx context.Context) { n.playCue(ctx, cueStart) }

// CueStop emits the stop cue.
func (n *Notifier) CueStop(ctx context.Context) { n.playCue(ctx, cueStop) }

// CueComplete emits the feedback-ready cue.
func (n *Notifier) CueComplete(ctx context.Context) { n.playCue(ctx, cueComplete) }

// CueError emits the failure cue.
func (n *Notifier) CueError(ctx context.Context) { n.playCue(ctx, cueError) }

// Wait blocks until queued cues have finished playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

func (n *Notifier) status(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.speaking != speakerNone {
		fmt.Fprintln(n.out)
		n.speaking = speakerNone
	}
	fmt.Fprintf(n.out, "[%s]\n", text)
}

func (n *Notifier) stream(who speaker, text string) {
	if text == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.speaking != who {
		if n.speaking != speakerNone {
			fmt.Fprintln(n.out)
		}
		label := n.messages.candidate
		if who == speakerModel {
			label = n.messages.interviewer
		}
		fmt.Fprintf(n.out, "%s: ", label)
		n.speaking = who
	}
	io.WriteString(n.out, text)
}

func (n *Notifier) desktop(ctx context.Context, timeoutMS int, text string) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notifyDesktop(ctx, timeoutMS, text)
	})
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "studymate"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes a desktop operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		cueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 4*time.Second)
		defer cancel()
		if err := n.cue(cueCtx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
