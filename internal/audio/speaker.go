package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/jfreymuth/pulse"

	"github.com/rbright/studymate/internal/pcm"
)

// Renderer produces the next block of mono output samples.
type Renderer interface {
	Render(out []int16) int
}

// SpeakerConfig selects the output backend.
type SpeakerConfig struct {
	Backend    string
	Output     string
	SampleRate int
}

// Speaker pulls PCM from a Renderer into the sound card until closed.
type Speaker struct {
	once    sync.Once
	release func()
}

const speakerFramesPerBuffer = 1024

// StartSpeaker opens an output stream that renders from r.
func StartSpeaker(cfg SpeakerConfig, r Renderer) (*Speaker, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.OutputSampleRate
	}
	switch normalizeBackend(cfg.Backend) {
	case BackendPulse:
		return startPulseSpeaker(cfg, r)
	case BackendPortAudio:
		return startPortAudioSpeaker(cfg, r)
	default:
		return nil, fmt.Errorf("unsupported audio backend %q", cfg.Backend)
	}
}

// Close stops output and releases the device. It is idempotent.
func (s *Speaker) Close() error {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

func startPulseSpeaker(cfg SpeakerConfig, r Renderer) (*Speaker, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cfg.SampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("studymate interviewer"),
	}
	if cfg.Output != "" && cfg.Output != "default" {
		sink, serr := client.SinkByID(cfg.Output)
		if serr != nil {
			client.Close()
			return nil, fmt.Errorf("resolve sink %q: %w", cfg.Output, serr)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		return r.Render(buf), nil
	})
	stream, err := client.NewPlayback(reader, opts...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}
	stream.Start()

	return &Speaker{release: func() {
		stream.Stop()
		stream.Close()
		client.Close()
	}}, nil
}

func startPortAudioSpeaker(cfg SpeakerConfig, r Renderer) (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	name := cfg.Output
	if name == "default" {
		name = ""
	}
	device, err := portAudioDevice(name, false)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: speakerFramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, func(out []int16) {
		r.Render(out)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open portaudio output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start portaudio output stream: %w", err)
	}

	return &Speaker{release: func() {
		_ = stream.Stop()
		_ = stream.Close()
		_ = portaudio.Terminate()
	}}, nil
}
