package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/studymate/internal/pcm"
)

// DefaultFrameSize is the number of mono samples delivered per capture frame.
const DefaultFrameSize = 4096

// CaptureConfig selects the backend and device for one capture.
type CaptureConfig struct {
	Backend    string
	Input      string
	Fallback   string
	SampleRate int
	FrameSize  int
	Logger     *slog.Logger
}

// MicrophoneUnavailableError reports that no microphone could be acquired:
// the device is missing, permission was denied, or the backend failed.
type MicrophoneUnavailableError struct {
	Backend string
	Device  string
	Err     error
}

func (e *MicrophoneUnavailableError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Device == "" {
		return fmt.Sprintf("microphone unavailable (%s): %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("microphone unavailable (%s %q): %v", e.Backend, e.Device, e.Err)
}

func (e *MicrophoneUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Capture delivers fixed-size mono float frames from one input device.
type Capture struct {
	device    Device
	frameSize int

	frames chan []float32
	stopCh chan struct{}

	mu      sync.Mutex
	pending []float32
	stopped bool
	release func()

	inflight sync.WaitGroup
	samples  atomic.Int64
}

// StartCapture acquires the configured input device and starts streaming.
// Failures are reported as *MicrophoneUnavailableError.
func StartCapture(ctx context.Context, cfg CaptureConfig) (*Capture, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.InputSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	backend := normalizeBackend(cfg.Backend)

	selection, err := SelectDevice(ctx, backend, cfg.Input, cfg.Fallback)
	if err != nil {
		return nil, &MicrophoneUnavailableError{Backend: backend, Device: cfg.Input, Err: err}
	}
	if selection.Warning != "" && cfg.Logger != nil {
		cfg.Logger.Warn(selection.Warning)
	}

	capture := newCapture(selection.Device, cfg.FrameSize)
	switch backend {
	case BackendPulse:
		err = capture.startPulse(cfg)
	case BackendPortAudio:
		err = capture.startPortAudio(cfg)
	default:
		err = fmt.Errorf("unsupported audio backend %q", backend)
	}
	if err != nil {
		capture.Close()
		return nil, &MicrophoneUnavailableError{Backend: backend, Device: selection.Device.ID, Err: err}
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

func newCapture(device Device, frameSize int) *Capture {
	return &Capture{
		device:    device,
		frameSize: frameSize,
		frames:    make(chan []float32, 32),
		stopCh:    make(chan struct{}),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Frames returns the stream of frames. It is closed by Stop.
func (c *Capture) Frames() <-chan []float32 {
	return c.frames
}

// SamplesCaptured reports total samples accepted from the backend.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// Stop releases the device and closes Frames exactly once. A trailing
// partial frame is discarded.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	release := c.release
	c.release = nil
	c.pending = nil
	c.mu.Unlock()

	if release != nil {
		release()
	}

	c.inflight.Wait()
	close(c.frames)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// setRelease installs the backend teardown run by Stop.
func (c *Capture) setRelease(release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release = release
}

// onSamples receives backend audio and emits frameSize frames to c.frames.
func (c *Capture) onSamples(buffer []float32) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop cannot Wait before it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	ready := make([][]float32, 0, len(c.pending)/c.frameSize)
	for len(c.pending) >= c.frameSize {
		frame := make([]float32, c.frameSize)
		copy(frame, c.pending[:c.frameSize])
		c.pending = c.pending[c.frameSize:]
		ready = append(ready, frame)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.samples.Add(int64(len(buffer)))

	for _, frame := range ready {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}

	return len(buffer), nil
}
