package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"

	"github.com/rbright/studymate/internal/audio"
	"github.com/rbright/studymate/internal/config"
	"github.com/rbright/studymate/internal/live"
	"github.com/rbright/studymate/internal/pcm"
	"github.com/rbright/studymate/internal/session"
	"github.com/rbright/studymate/internal/transcript"
)

type fakeCapture struct {
	frames chan []float32
	stops  atomic.Int32
	once   sync.Once
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan []float32, 8)}
}

func (f *fakeCapture) Frames() <-chan []float32 { return f.frames }

func (f *fakeCapture) Device() audio.Device {
	return audio.Device{ID: "alsa_input.usb", Description: "USB Mic"}
}

func (f *fakeCapture) Stop() error {
	f.stops.Add(1)
	f.once.Do(func() { close(f.frames) })
	return nil
}

type fakeSpeaker struct {
	closes atomic.Int32
}

func (f *fakeSpeaker) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeTransport struct {
	openErr error
	closes  atomic.Int32

	mu      sync.Mutex
	sent    []live.Blob
	cfg     live.Config
	handler live.Handler
}

func (f *fakeTransport) WaitOpen(context.Context) error { return f.openErr }

func (f *fakeTransport) Send(blob live.Blob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, blob)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) blobs() []live.Blob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]live.Blob(nil), f.sent...)
}

type rig struct {
	iv        *Interview
	capture   *fakeCapture
	speaker   *fakeSpeaker
	transport *fakeTransport
	dials     atomic.Int32
}

func newRig(cfg config.Config) *rig {
	r := &rig{
		capture:   newFakeCapture(),
		speaker:   &fakeSpeaker{},
		transport: &fakeTransport{},
	}
	r.iv = NewInterview(cfg, "test-key", nil)
	r.iv.startCapture = func(context.Context, audio.CaptureConfig) (frameSource, error) {
		return r.capture, nil
	}
	r.iv.startSpeaker = func(audio.SpeakerConfig, audio.Renderer) (io.Closer, error) {
		return r.speaker, nil
	}
	r.iv.dial = func(_ context.Context, c live.Config, h live.Handler) transport {
		r.dials.Add(1)
		r.transport.mu.Lock()
		r.transport.cfg = c
		r.transport.handler = h
		r.transport.mu.Unlock()
		return r.transport
	}
	return r
}

func TestOpenForwardsFramesInCaptureOrder(t *testing.T) {
	r := newRig(config.Default())

	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)
	require.Equal(t, "USB Mic (alsa_input.usb)", handle.Device())
	require.NotEmpty(t, handle.ID())

	first := []float32{0.5, -0.5}
	second := []float32{1, -1}
	r.capture.frames <- first
	r.capture.frames <- second
	require.NoError(t, handle.Close())

	blobs := r.transport.blobs()
	require.Len(t, blobs, 2)
	for i, frame := range [][]float32{first, second} {
		require.Equal(t, pcm.InputMIMEType, blobs[i].MIMEType)
		raw, err := pcm.Decode(blobs[i].Data)
		require.NoError(t, err)
		require.Equal(t, pcm.FloatToPCM16(frame), raw)
	}
}

func TestOpenPassesSessionConfigToTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Interview.Focus = []string{"teamwork"}
	r := newRig(cfg)

	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)
	defer handle.Close()

	r.transport.mu.Lock()
	got := r.transport.cfg
	r.transport.mu.Unlock()
	require.Equal(t, "test-key", got.APIKey)
	require.Equal(t, cfg.Gemini.LiveEndpoint, got.Endpoint)
	require.Equal(t, cfg.Gemini.LiveModel, got.Model)
	require.Contains(t, got.SystemInstruction, "teamwork")
	require.Nil(t, got.DebugSink)
}

func TestOpenReleasesEverythingWhenTransportFails(t *testing.T) {
	r := newRig(config.Default())
	handshakeErr := &live.ConnectionError{Op: "dial", Err: errors.New("refused")}
	r.transport.openErr = handshakeErr

	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.Nil(t, handle)
	require.ErrorIs(t, err, handshakeErr)
	require.Equal(t, int32(1), r.capture.stops.Load())
	require.Equal(t, int32(1), r.speaker.closes.Load())
	require.Equal(t, int32(1), r.transport.closes.Load())
}

func TestOpenMicrophoneFailureAcquiresNothingElse(t *testing.T) {
	r := newRig(config.Default())
	micErr := &audio.MicrophoneUnavailableError{Backend: "pulse", Err: errors.New("permission denied")}
	r.iv.startCapture = func(context.Context, audio.CaptureConfig) (frameSource, error) {
		return nil, micErr
	}

	_, err := r.iv.Open(context.Background(), session.Callbacks{})
	var target *audio.MicrophoneUnavailableError
	require.ErrorAs(t, err, &target)
	require.Zero(t, r.dials.Load())
	require.Zero(t, r.speaker.closes.Load())
}

func TestOpenSpeakerFailureStopsCapture(t *testing.T) {
	r := newRig(config.Default())
	r.iv.startSpeaker = func(audio.SpeakerConfig, audio.Renderer) (io.Closer, error) {
		return nil, errors.New("no sink")
	}

	_, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.ErrorContains(t, err, "start speaker")
	require.Equal(t, int32(1), r.capture.stops.Load())
	require.Zero(t, r.dials.Load())
}

func TestHandlerEventsAssembleTurns(t *testing.T) {
	r := newRig(config.Default())
	var (
		mu    sync.Mutex
		user  []string
		model []string
		turns []transcript.Turn
	)
	handle, err := r.iv.Open(context.Background(), session.Callbacks{
		UserTranscript:  func(s string) { mu.Lock(); user = append(user, s); mu.Unlock() },
		ModelTranscript: func(s string) { mu.Lock(); model = append(model, s); mu.Unlock() },
		Turn:            func(turn transcript.Turn) { mu.Lock(); turns = append(turns, turn); mu.Unlock() },
	})
	require.NoError(t, err)
	defer handle.Close()

	h := r.transport.handler
	h.InputTranscript("Hel")
	h.InputTranscript("lo")
	h.OutputTranscript("Hi there")
	h.TurnComplete()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Hel", "Hello"}, user)
	require.Equal(t, []string{"Hi there"}, model)
	require.Equal(t, []transcript.Turn{{User: "Hello", Model: "Hi there"}}, turns)
}

func TestModelAudioIsScheduledAndInterruptClears(t *testing.T) {
	r := newRig(config.Default())
	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)
	defer handle.Close()
	ih := handle.(*interviewHandle)

	chunk := make([]byte, 2*2400)
	r.transport.handler.Audio(chunk)
	r.transport.handler.Audio(chunk)
	require.Equal(t, 2, ih.scheduler.Active())
	require.Greater(t, ih.scheduler.NextStart(), ih.mixer.CurrentTime())

	r.transport.handler.Interrupted()
	require.Zero(t, ih.scheduler.Active())
	require.Zero(t, ih.scheduler.NextStart())
}

func TestPlayAfterCloseFails(t *testing.T) {
	r := newRig(config.Default())
	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)

	greeting := pcm.Buffer{SampleRate: pcm.OutputSampleRate, Channels: 1, Data: [][]float32{make([]float32, 240)}}
	require.NoError(t, handle.Play(greeting))
	require.NoError(t, handle.Close())
	require.ErrorIs(t, handle.Play(greeting), ErrHandleClosed)
}

func TestCloseReleasesResourcesOnce(t *testing.T) {
	r := newRig(config.Default())
	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)

	require.NoError(t, handle.Close())
	require.NoError(t, handle.Close())
	require.Equal(t, int32(1), r.capture.stops.Load())
	require.Equal(t, int32(1), r.speaker.closes.Load())
	require.Equal(t, int32(1), r.transport.closes.Load())
}

func TestRemoteCloseIsForwardedAndMayCloseHandle(t *testing.T) {
	r := newRig(config.Default())
	var handle session.Handle
	closedErr := make(chan error, 1)
	handle, err := r.iv.Open(context.Background(), session.Callbacks{
		Closed: func(err error) {
			_ = handle.Close()
			closedErr <- err
		},
	})
	require.NoError(t, err)

	remote := errors.New("reset by peer")
	r.transport.handler.Closed(remote)
	require.ErrorIs(t, <-closedErr, remote)
	require.Equal(t, int32(1), r.transport.closes.Load())
}

func TestAudioDumpWritesCapturedPCM(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)
	cfg := config.Default()
	cfg.Debug.EnableAudioDump = true
	r := newRig(cfg)

	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)
	r.capture.frames <- []float32{0.25, -0.25, 0.5}
	require.NoError(t, handle.Close())

	matches, err := filepath.Glob(filepath.Join(stateDir, "studymate", "debug", "audio-"+handle.ID()+"-*.wav"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	require.NoError(t, err)
	require.Equal(t, uint32(pcm.InputSampleRate), format.SampleRate)
	require.Equal(t, uint16(1), format.NumChannels)

	samples, err := reader.ReadSamples(16)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, 8192, reader.IntValue(samples[0], 0))
	require.Equal(t, -8192, reader.IntValue(samples[1], 0))
	require.Equal(t, 16384, reader.IntValue(samples[2], 0))
}

func TestWireDumpIsHandedToTransport(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)
	cfg := config.Default()
	cfg.Debug.EnableWireDump = true
	r := newRig(cfg)

	handle, err := r.iv.Open(context.Background(), session.Callbacks{})
	require.NoError(t, err)

	r.transport.mu.Lock()
	sink := r.transport.cfg.DebugSink
	r.transport.mu.Unlock()
	require.NotNil(t, sink)
	_, err = sink.Write([]byte("{\"setupComplete\":{}}\n"))
	require.NoError(t, err)
	require.NoError(t, handle.Close())

	matches, err := filepath.Glob(filepath.Join(stateDir, "studymate", "debug", "wire-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Equal(t, "{\"setupComplete\":{}}\n", string(data))
}

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}
