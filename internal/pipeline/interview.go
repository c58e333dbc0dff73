// Package pipeline wires microphone capture, the realtime transport, and
// speaker playback into one interview session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rbright/studymate/internal/audio"
	"github.com/rbright/studymate/internal/config"
	"github.com/rbright/studymate/internal/live"
	"github.com/rbright/studymate/internal/pcm"
	"github.com/rbright/studymate/internal/playback"
	"github.com/rbright/studymate/internal/session"
	"github.com/rbright/studymate/internal/transcript"
)

// ErrHandleClosed is returned by Play after the session was closed.
var ErrHandleClosed = errors.New("interview session closed")

type frameSource interface {
	Frames() <-chan []float32
	Device() audio.Device
	Stop() error
}

type transport interface {
	WaitOpen(context.Context) error
	Send(live.Blob) error
	Close() error
}

// Interview opens interview sessions from runtime config.
type Interview struct {
	cfg    config.Config
	apiKey string
	logger *slog.Logger

	startCapture func(context.Context, audio.CaptureConfig) (frameSource, error)
	startSpeaker func(audio.SpeakerConfig, audio.Renderer) (io.Closer, error)
	dial         func(context.Context, live.Config, live.Handler) transport
}

// NewInterview constructs an opener backed by real audio devices and the live endpoint.
func NewInterview(cfg config.Config, apiKey string, logger *slog.Logger) *Interview {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Interview{
		cfg:    cfg,
		apiKey: apiKey,
		logger: logger,
		startCapture: func(ctx context.Context, c audio.CaptureConfig) (frameSource, error) {
			return audio.StartCapture(ctx, c)
		},
		startSpeaker: func(c audio.SpeakerConfig, r audio.Renderer) (io.Closer, error) {
			return audio.StartSpeaker(c, r)
		},
		dial: func(ctx context.Context, c live.Config, h live.Handler) transport {
			return live.Dial(ctx, c, h)
		},
	}
}

// Open acquires the microphone, both audio contexts and the transport, then
// waits for the session to open. On failure everything acquired is released.
func (iv *Interview) Open(ctx context.Context, cb session.Callbacks) (session.Handle, error) {
	id := uuid.NewString()
	h := &interviewHandle{
		id:          id,
		logger:      iv.logger.With("session", id),
		onClosed:    cb.Closed,
		recordAudio: iv.cfg.Debug.EnableAudioDump,
		mixer:       playback.NewMixer(pcm.OutputSampleRate),
	}
	h.scheduler = playback.NewScheduler(h.mixer)
	h.assembler = transcript.NewAssembler(transcript.Callbacks{
		User:  cb.UserTranscript,
		Model: cb.ModelTranscript,
		Turn:  cb.Turn,
	})

	if iv.cfg.Debug.EnableWireDump {
		file, err := createDebugFile("wire-"+id, "jsonl")
		if err != nil {
			h.logger.Warn("unable to create wire dump", "error", err.Error())
		} else {
			h.wireFile = file
		}
	}

	capture, err := iv.startCapture(ctx, audio.CaptureConfig{
		Backend:    iv.cfg.Audio.Backend,
		Input:      iv.cfg.Audio.Input,
		Fallback:   iv.cfg.Audio.Fallback,
		SampleRate: pcm.InputSampleRate,
		FrameSize:  audio.DefaultFrameSize,
		Logger:     h.logger,
	})
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	h.capture = capture
	h.device = describeDevice(capture.Device())

	speaker, err := iv.startSpeaker(audio.SpeakerConfig{
		Backend:    iv.cfg.Audio.Backend,
		Output:     iv.cfg.Audio.Output,
		SampleRate: pcm.OutputSampleRate,
	}, h.mixer)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("start speaker: %w", err)
	}
	h.speaker = speaker

	liveCfg := live.Config{
		Endpoint:          iv.cfg.Gemini.LiveEndpoint,
		APIKey:            iv.apiKey,
		Model:             iv.cfg.Gemini.LiveModel,
		SystemInstruction: iv.cfg.Interview.SystemInstructionText(),
		Logger:            h.logger,
	}
	if h.wireFile != nil {
		liveCfg.DebugSink = h.wireFile
	}
	h.transport = iv.dial(ctx, liveCfg, h)

	h.forwardDone = make(chan struct{})
	go h.forward()

	if err := h.transport.WaitOpen(ctx); err != nil {
		_ = h.Close()
		return nil, err
	}
	h.logger.Info("interview pipeline open", "device", h.device)
	return h, nil
}

// interviewHandle is one open session. It is also the transport's event handler.
type interviewHandle struct {
	id       string
	device   string
	logger   *slog.Logger
	onClosed func(error)

	capture     frameSource
	speaker     io.Closer
	transport   transport
	mixer       *playback.Mixer
	scheduler   *playback.Scheduler
	assembler   *transcript.Assembler
	forwardDone chan struct{}

	recordAudio bool
	recorded    []byte
	wireFile    *os.File

	closed    atomic.Bool
	closeOnce sync.Once
}

func (h *interviewHandle) ID() string     { return h.id }
func (h *interviewHandle) Device() string { return h.device }

// Play schedules buf after any queued model audio.
func (h *interviewHandle) Play(buf pcm.Buffer) error {
	if h.closed.Load() {
		return ErrHandleClosed
	}
	h.scheduler.Enqueue(buf)
	return nil
}

// Close releases microphone, output context, and socket exactly once.
func (h *interviewHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)

		if h.capture != nil {
			_ = h.capture.Stop()
		}
		if h.forwardDone != nil {
			<-h.forwardDone
		}

		h.scheduler.Interrupt()
		h.mixer.Close()
		if h.speaker != nil {
			if err := h.speaker.Close(); err != nil {
				h.logger.Warn("speaker close failed", "error", err.Error())
			}
		}

		if h.transport != nil {
			_ = h.transport.Close()
		}

		h.writeDebugAudio()
		if h.wireFile != nil {
			_ = h.wireFile.Close()
		}
		h.logger.Debug("interview pipeline closed")
	})
	return nil
}

// forward converts each captured frame to a PCM16 blob and sends it in capture order.
func (h *interviewHandle) forward() {
	defer close(h.forwardDone)

	for frame := range h.capture.Frames() {
		raw := pcm.FloatToPCM16(frame)
		if h.recordAudio {
			h.recorded = append(h.recorded, raw...)
		}
		blob := live.Blob{Data: pcm.Encode(raw), MIMEType: pcm.InputMIMEType}
		if err := h.transport.Send(blob); err != nil {
			h.logger.Warn("dropping microphone frame", "error", err.Error())
		}
	}
}

func (h *interviewHandle) Audio(raw []byte) {
	buf, err := pcm.DecodeAudioData(raw, pcm.OutputSampleRate, 1)
	if err != nil {
		h.logger.Warn("dropping undecodable model audio", "error", err.Error())
		return
	}
	h.scheduler.Enqueue(buf)
}

func (h *interviewHandle) InputTranscript(text string)  { h.assembler.AppendUser(text) }
func (h *interviewHandle) OutputTranscript(text string) { h.assembler.AppendModel(text) }
func (h *interviewHandle) TurnComplete()                { h.assembler.Complete() }

func (h *interviewHandle) Interrupted() {
	stopped := h.scheduler.Interrupt()
	h.logger.Debug("model audio interrupted", "sources_stopped", stopped)
}

func (h *interviewHandle) Closed(err error) {
	if h.onClosed != nil {
		h.onClosed(err)
	}
}

// writeDebugAudio writes captured microphone PCM to WAV when debug.audio_dump is enabled.
func (h *interviewHandle) writeDebugAudio() {
	if !h.recordAudio || len(h.recorded) == 0 {
		return
	}

	file, err := createDebugFile("audio-"+h.id, "wav")
	if err != nil {
		h.logger.Warn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if err := writeWAV(file, h.recorded, pcm.InputSampleRate); err != nil {
		h.logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}

// describeDevice formats device metadata for logs and session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
