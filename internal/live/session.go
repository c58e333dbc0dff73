// Package live implements the realtime audio session transport.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/studymate/internal/pcm"
)

// ErrClosed is returned by WaitOpen when Close ran before the session opened.
var ErrClosed = errors.New("live session closed")

// State is the transport lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Handler receives inbound session events on a single goroutine, in arrival order.
//
// Closed fires at most once, and only when the remote side ended an open
// session. It runs after the read goroutine has finished, so it may call Close.
type Handler interface {
	Audio(pcm []byte)
	InputTranscript(text string)
	OutputTranscript(text string)
	TurnComplete()
	Interrupted()
	Closed(err error)
}

// ConnectionError reports a failed handshake or an abnormal termination.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("live %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Config controls one session.
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	SystemInstruction string
	Header            http.Header
	Dialer            *websocket.Dialer
	// DebugSink receives every inbound frame as one JSON line.
	DebugSink io.Writer
	Logger    *slog.Logger
}

// Session is one realtime connection.
type Session struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	pending []Blob
	conn    *websocket.Conn
	openErr error

	opened     chan struct{}
	openedOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once

	writeMu sync.Mutex
}

// Dial starts connecting and returns immediately in StateConnecting.
func Dial(ctx context.Context, cfg Config, handler Handler) *Session {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dialCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     dialCtx,
		cancel:  cancel,
		state:   StateConnecting,
		opened:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitOpen blocks until the session leaves StateConnecting.
func (s *Session) WaitOpen(ctx context.Context) error {
	select {
	case <-s.opened:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues a frame while connecting and transmits it once open.
// Frames sent after the session closed are dropped.
func (s *Session) Send(blob Blob) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.pending = append(s.pending, blob)
		s.mu.Unlock()
		return nil
	case StateOpen:
		conn := s.conn
		s.mu.Unlock()
		return s.writeBlob(conn, blob)
	default:
		s.mu.Unlock()
		return nil
	}
}

// Close ends the session from any state. It is idempotent and waits for
// the session goroutine to exit.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		conn := s.conn
		if prev == StateConnecting || prev == StateOpen {
			s.state = StateClosed
			s.pending = nil
		}
		s.mu.Unlock()

		s.settleOpen(ErrClosed)
		s.cancel()

		if conn != nil && (prev == StateConnecting || prev == StateOpen) {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(2*time.Second),
			)
			_ = conn.Close()
		}
	})
	<-s.done
	return nil
}

func (s *Session) run() {
	var remoteErr error
	remoteClosed := false
	defer func() {
		close(s.done)
		if remoteClosed && s.handler != nil {
			s.handler.Closed(remoteErr)
		}
	}()

	conn, err := s.handshake()
	if err != nil {
		s.failConnect(err)
		return
	}

	if !s.open(conn) {
		return
	}

	remoteClosed, remoteErr = s.readLoop(conn)
}

// handshake dials, sends the setup message and waits for setupComplete.
func (s *Session) handshake() (*websocket.Conn, error) {
	endpoint, err := endpointURL(s.cfg.Endpoint, s.cfg.APIKey)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	dialer := s.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(s.ctx, endpoint, s.cfg.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()

	if err := conn.WriteJSON(newSetup(s.cfg.Model, s.cfg.SystemInstruction)); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Op: "setup", Err: err}
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return nil, &ConnectionError{Op: "setup", Err: err}
		}
		s.dump(payload)

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("live: ignoring malformed frame during setup", "error", err.Error())
			continue
		}
		if msg.SetupComplete != nil {
			return conn, nil
		}
	}
}

// open flushes queued frames and moves to StateOpen before any inbound
// message is dispatched.
func (s *Session) open(conn *websocket.Conn) bool {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return false
	}

	pending := s.pending
	s.pending = nil
	for _, blob := range pending {
		if err := s.writeBlob(conn, blob); err != nil {
			s.state = StateErrored
			s.openErr = &ConnectionError{Op: "send", Err: err}
			s.mu.Unlock()
			_ = conn.Close()
			s.settleOpen(nil)
			return false
		}
	}
	s.state = StateOpen
	s.mu.Unlock()

	s.settleOpen(nil)
	s.logger.Debug("live session open", "flushed_frames", len(pending))
	return true
}

func (s *Session) failConnect(err error) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateErrored
	s.openErr = err
	s.mu.Unlock()

	s.settleOpen(nil)
	s.logger.Error("live connect failed", "error", err.Error())
}

// settleOpen releases WaitOpen. fallback is used when no error was recorded
// and the session never opened.
func (s *Session) settleOpen(fallback error) {
	s.openedOnce.Do(func() {
		if fallback != nil {
			s.mu.Lock()
			if s.openErr == nil && s.state != StateOpen {
				s.openErr = fallback
			}
			s.mu.Unlock()
		}
		close(s.opened)
	})
}

// readLoop dispatches inbound frames until the socket ends. It reports
// whether the remote side ended the session and the error to surface.
func (s *Session) readLoop(conn *websocket.Conn) (bool, error) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return s.terminate(conn, err)
		}
		s.dump(payload)
		s.dispatch(payload)
	}
}

func (s *Session) terminate(conn *websocket.Conn, err error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false, nil
	}

	_ = conn.Close()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.state = StateClosed
		s.logger.Info("live session closed by remote")
		return true, nil
	}
	s.state = StateErrored
	s.logger.Error("live session failed", "error", err.Error())
	return true, &ConnectionError{Op: "read", Err: err}
}

func (s *Session) dispatch(payload []byte) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("live: ignoring malformed frame", "error", err.Error())
		return
	}
	sc := msg.ServerContent
	if sc == nil || s.handler == nil {
		return
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			raw, err := pcm.Decode(p.InlineData.Data)
			if err != nil {
				s.logger.Warn("live: dropping malformed audio chunk", "error", err.Error())
				continue
			}
			s.handler.Audio(raw)
		}
	}
	if sc.InputTranscription != nil {
		s.handler.InputTranscript(sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil {
		s.handler.OutputTranscript(sc.OutputTranscription.Text)
	}
	if sc.TurnComplete {
		s.handler.TurnComplete()
	}
	if sc.Interrupted {
		s.handler.Interrupted()
	}
}

func (s *Session) writeBlob(conn *websocket.Conn, blob Blob) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := clientRealtimeInput{RealtimeInput: realtimeInput{MediaChunks: []Blob{blob}}}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write realtime input: %w", err)
	}
	return nil
}

// dump writes one inbound frame to the debug sink as a compact JSON line.
func (s *Session) dump(payload []byte) {
	sink := s.cfg.DebugSink
	if sink == nil {
		return
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return
	}
	buf.WriteByte('\n')
	_, _ = sink.Write(buf.Bytes())
}

func endpointURL(endpoint string, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		q := u.Query()
		q.Set("key", key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
