package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

func (c *Capture) startPortAudio(cfg CaptureConfig) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}

	device, err := portAudioDevice(c.device.ID, true)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: c.frameSize,
	}
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		_, _ = c.onSamples(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open portaudio input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start portaudio input stream: %w", err)
	}

	c.setRelease(func() {
		_ = stream.Stop()
		_ = stream.Close()
		_ = portaudio.Terminate()
	})
	return nil
}

// portAudioDevice resolves a device by name, or the default device for an
// empty name. portaudio must be initialized.
func portAudioDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list portaudio devices: %w", err)
	}
	for _, info := range infos {
		if info == nil || info.Name != name {
			continue
		}
		if input && info.MaxInputChannels > 0 || !input && info.MaxOutputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("portaudio device %q not found", name)
}
