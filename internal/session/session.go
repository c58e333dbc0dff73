// Package session coordinates interview lifecycle state, history, and teardown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rbright/studymate/internal/fsm"
	"github.com/rbright/studymate/internal/ipc"
	"github.com/rbright/studymate/internal/transcript"
)

// ErrPipelineUnavailable indicates no Opener was wired.
var ErrPipelineUnavailable = errors.New("interview pipeline not configured")

// Result summarizes one interview from Start to its end.
type Result struct {
	State             fsm.State
	SessionID         string
	AudioDevice       string
	Turns             int
	FeedbackAvailable bool
	Err               error
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Controller owns the interview lifecycle and the saved turn history.
type Controller struct {
	logger   *slog.Logger
	opener   Opener
	history  HistoryStore
	observer Observer
	greeter  Greeter

	mu            sync.RWMutex
	state         fsm.State
	generation    uint64
	handle        Handle
	cancelSession context.CancelFunc
	sessionID     string
	device        string
	turns         []transcript.Turn
	startedAt     time.Time
	ended         chan struct{}
	result        Result

	greetings sync.WaitGroup
	closeOnce sync.Once
}

// NewController constructs a controller and loads saved history once.
// Unreadable history starts empty.
func NewController(
	logger *slog.Logger,
	opener Opener,
	history HistoryStore,
	observer Observer,
	greeter Greeter,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opener == nil {
		opener = unavailableOpener{}
	}
	if history == nil {
		history = memoryHistory{}
	}
	if observer == nil {
		observer = noopObserver{}
	}

	c := &Controller{
		logger:   logger,
		opener:   opener,
		history:  history,
		observer: observer,
		greeter:  greeter,
		state:    fsm.StateIdle,
	}

	turns, err := history.LoadHistory()
	if err != nil {
		logger.Warn("interview history unreadable; starting empty", "error", err.Error())
		turns = nil
	}
	c.turns = turns
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// History returns a copy of the recorded turns.
func (c *Controller) History() []transcript.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.turns)
}

// LastResult returns the summary of the most recently finished session.
func (c *Controller) LastResult() Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// ClearHistory empties and persists the turn history.
func (c *Controller) ClearHistory() error {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
	return c.history.ClearHistory()
}

// Start clears history and opens a new interview. It blocks until the
// session is active, failed, or was stopped while connecting.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != fsm.StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrSessionActive, state)
	}
	if err := c.transitionLocked(fsm.EventStart); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	gen := c.generation
	sessionCtx, cancel := context.WithCancel(ctx)
	c.cancelSession = cancel
	c.turns = nil
	c.sessionID = ""
	c.device = ""
	c.startedAt = time.Now()
	c.ended = make(chan struct{})
	c.mu.Unlock()

	if err := c.history.ClearHistory(); err != nil {
		c.logger.Warn("unable to clear interview history", "error", err.Error())
	}
	c.observer.ShowConnecting(ctx)

	handle, err := c.opener.Open(sessionCtx, c.callbacks(gen))

	c.mu.Lock()
	if c.generation != gen {
		endErr := c.result.Err
		c.mu.Unlock()
		if handle != nil {
			_ = handle.Close()
		}
		if endErr != nil {
			return endErr
		}
		return ErrConnectCancelled
	}
	if err != nil {
		c.generation++
		_ = c.transitionLocked(fsm.EventFail)
		_ = c.transitionLocked(fsm.EventReset)
		c.finishLocked(err)
		c.mu.Unlock()

		c.logger.Error("interview open failed", "error", err.Error())
		c.observer.ShowError(ctx, "Unable to start interview")
		c.observer.CueError(ctx)
		return err
	}
	c.handle = handle
	c.sessionID = handle.ID()
	c.device = handle.Device()
	_ = c.transitionLocked(fsm.EventOpen)
	c.mu.Unlock()

	c.logger.Info("interview session active", "session", handle.ID(), "device", handle.Device())
	c.observer.ShowActive(ctx, handle.Device())
	c.observer.CueStart(ctx)

	if c.greeter != nil {
		c.greetings.Add(1)
		go c.greet(sessionCtx, gen, handle)
	}
	return nil
}

// Stop ends the current session. It is a no-op when idle and cancels a
// pending connect.
func (c *Controller) Stop(ctx context.Context) Result {
	c.mu.Lock()
	switch c.state {
	case fsm.StateConnecting:
		c.generation++
		_ = c.transitionLocked(fsm.EventStop)
		result := c.finishLocked(nil)
		c.mu.Unlock()

		c.logger.Info("interview cancelled while connecting")
		c.observer.ShowStopped(ctx, false)
		return result
	case fsm.StateActive:
		handle := c.handle
		c.handle = nil
		c.generation++
		_ = c.transitionLocked(fsm.EventStop)
		result := c.finishLocked(nil)
		c.mu.Unlock()

		c.closeHandle(handle)
		c.logger.Info("interview stopped", "session", result.SessionID, "turns", result.Turns)
		c.observer.CueStop(ctx)
		c.observer.ShowStopped(ctx, result.FeedbackAvailable)
		return result
	default:
		result := Result{State: c.state, Turns: len(c.turns), FeedbackAvailable: len(c.turns) > 0}
		c.mu.Unlock()
		return result
	}
}

// Close stops any open session and waits for background work. It is idempotent.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.Stop(context.Background())
		c.greetings.Wait()
	})
	return nil
}

// Run starts a session and blocks until it ends. Cancelling ctx stops it.
func (c *Controller) Run(ctx context.Context) Result {
	startedAt := time.Now()
	if err := c.Start(ctx); err != nil {
		return Result{State: c.State(), Err: err, StartedAt: startedAt, FinishedAt: time.Now()}
	}

	c.mu.RLock()
	ended := c.ended
	c.mu.RUnlock()

	select {
	case <-ended:
	case <-ctx.Done():
		c.Stop(context.Background())
	}
	return c.LastResult()
}

// Handle serves IPC commands for the running interview.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		c.mu.RLock()
		resp := ipc.Response{
			OK:      true,
			State:   string(c.state),
			Session: c.sessionID,
			Message: fmt.Sprintf("%d turns recorded", len(c.turns)),
		}
		c.mu.RUnlock()
		return resp
	case ipc.CommandStop:
		state := c.State()
		if state != fsm.StateConnecting && state != fsm.StateActive {
			return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
		}
		result := c.Stop(ctx)
		message := "stopped"
		if result.FeedbackAvailable {
			message = "stopped; feedback available"
		}
		return ipc.Response{OK: true, State: string(c.State()), Session: result.SessionID, Message: message}
	case ipc.CommandTurns:
		data, err := json.Marshal(c.History())
		if err != nil {
			return ipc.Response{OK: false, State: string(c.State()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(c.State()), Data: data}
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) callbacks(gen uint64) Callbacks {
	return Callbacks{
		UserTranscript: func(text string) {
			if c.current(gen) {
				c.observer.ShowUserTranscript(context.Background(), text)
			}
		},
		ModelTranscript: func(text string) {
			if c.current(gen) {
				c.observer.ShowModelTranscript(context.Background(), text)
			}
		},
		Turn: func(turn transcript.Turn) {
			c.recordTurn(gen, turn)
		},
		Closed: func(err error) {
			c.remoteClosed(gen, err)
		},
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation == gen
}

// recordTurn appends turn and persists the full history immediately.
func (c *Controller) recordTurn(gen uint64, turn transcript.Turn) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.turns = append(c.turns, turn)
	snapshot := slices.Clone(c.turns)
	c.mu.Unlock()

	if err := c.history.SaveHistory(snapshot); err != nil {
		c.logger.Warn("unable to persist interview history", "error", err.Error())
	}
	c.observer.ShowTurn(context.Background(), turn)
}

func (c *Controller) remoteClosed(gen uint64, err error) {
	ctx := context.Background()

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	handle := c.handle
	c.handle = nil
	c.generation++
	if err != nil {
		_ = c.transitionLocked(fsm.EventFail)
		_ = c.transitionLocked(fsm.EventReset)
	} else if terr := c.transitionLocked(fsm.EventClosed); terr != nil {
		_ = c.transitionLocked(fsm.EventStop)
	}
	result := c.finishLocked(err)
	c.mu.Unlock()

	c.closeHandle(handle)
	if err != nil {
		c.logger.Error("interview connection lost", "session", result.SessionID, "error", err.Error())
		c.observer.ShowError(ctx, "Connection lost")
		c.observer.CueError(ctx)
	} else {
		c.logger.Info("interview ended by remote", "session", result.SessionID)
		c.observer.CueStop(ctx)
	}
	c.observer.ShowStopped(ctx, result.FeedbackAvailable)
}

func (c *Controller) greet(ctx context.Context, gen uint64, handle Handle) {
	defer c.greetings.Done()

	buf, err := c.greeter.Greeting(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("greeting unavailable", "error", err.Error())
		}
		return
	}
	if !c.current(gen) {
		return
	}
	if err := handle.Play(buf); err != nil {
		c.logger.Debug("greeting not played", "error", err.Error())
	}
}

func (c *Controller) closeHandle(handle Handle) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		c.logger.Warn("interview teardown failed", "error", err.Error())
	}
}

// finishLocked records the session result and releases waiters. c.mu must be held.
func (c *Controller) finishLocked(err error) Result {
	c.result = Result{
		State:             c.state,
		SessionID:         c.sessionID,
		AudioDevice:       c.device,
		Turns:             len(c.turns),
		FeedbackAvailable: len(c.turns) > 0,
		Err:               err,
		StartedAt:         c.startedAt,
		FinishedAt:        time.Now(),
	}
	if c.cancelSession != nil {
		c.cancelSession()
		c.cancelSession = nil
	}
	select {
	case <-c.ended:
	default:
		close(c.ended)
	}
	return c.result
}

// transitionLocked applies one FSM event. c.mu must be held.
func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

type unavailableOpener struct{}

func (unavailableOpener) Open(context.Context, Callbacks) (Handle, error) {
	return nil, ErrPipelineUnavailable
}
