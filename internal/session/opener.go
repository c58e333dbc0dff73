package session

import (
	"context"
	"errors"

	"github.com/rbright/studymate/internal/pcm"
	"github.com/rbright/studymate/internal/transcript"
)

var (
	// ErrSessionActive is returned by Start when a session is already connecting or active.
	ErrSessionActive = errors.New("interview session already active")
	// ErrConnectCancelled is returned by Start when Stop ran before the session opened.
	ErrConnectCancelled = errors.New("interview stopped while connecting")
)

// Callbacks carries live session events from an open Handle back to the controller.
type Callbacks struct {
	UserTranscript  func(string)
	ModelTranscript func(string)
	Turn            func(transcript.Turn)
	// Closed fires once when the remote ended the session. err is nil for a
	// normal close.
	Closed func(err error)
}

// Handle is one open interview: microphone, audio contexts and transport.
type Handle interface {
	ID() string
	Device() string
	Play(pcm.Buffer) error
	Close() error
}

// Opener acquires every resource an interview needs. On error nothing is
// left open.
type Opener interface {
	Open(context.Context, Callbacks) (Handle, error)
}

// HistoryStore persists completed interview turns.
type HistoryStore interface {
	LoadHistory() ([]transcript.Turn, error)
	SaveHistory([]transcript.Turn) error
	ClearHistory() error
}

// Greeter synthesizes the spoken greeting played when a session opens.
type Greeter interface {
	Greeting(context.Context) (pcm.Buffer, error)
}

// GreeterFunc adapts a function to the Greeter interface.
type GreeterFunc func(context.Context) (pcm.Buffer, error)

func (f GreeterFunc) Greeting(ctx context.Context) (pcm.Buffer, error) {
	return f(ctx)
}

// Observer is the session-facing subset of indicator behavior.
type Observer interface {
	ShowConnecting(context.Context)
	ShowActive(context.Context, string)
	ShowUserTranscript(context.Context, string)
	ShowModelTranscript(context.Context, string)
	ShowTurn(context.Context, transcript.Turn)
	ShowError(context.Context, string)
	ShowStopped(context.Context, bool)
	CueStart(context.Context)
	CueStop(context.Context)
	CueError(context.Context)
}

type noopObserver struct{}

func (noopObserver) ShowConnecting(context.Context)              {}
func (noopObserver) ShowActive(context.Context, string)          {}
func (noopObserver) ShowUserTranscript(context.Context, string)  {}
func (noopObserver) ShowModelTranscript(context.Context, string) {}
func (noopObserver) ShowTurn(context.Context, transcript.Turn)   {}
func (noopObserver) ShowError(context.Context, string)           {}
func (noopObserver) ShowStopped(context.Context, bool)           {}
func (noopObserver) CueStart(context.Context)                    {}
func (noopObserver) CueStop(context.Context)                     {}
func (noopObserver) CueError(context.Context)                    {}

type memoryHistory struct{}

func (memoryHistory) LoadHistory() ([]transcript.Turn, error) { return nil, nil }
func (memoryHistory) SaveHistory([]transcript.Turn) error     { return nil }
func (memoryHistory) ClearHistory() error                     { return nil }
