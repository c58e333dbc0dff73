package audio

import (
	"fmt"

	"github.com/jfreymuth/pulse"
)

// pulseFragmentBytes asks the server for one float32 frame per fragment.
const pulseFragmentBytes = DefaultFrameSize * 4

func (c *Capture) startPulse(cfg CaptureConfig) error {
	client, err := newPulseClient()
	if err != nil {
		return err
	}

	source, err := client.SourceByID(c.device.ID)
	if err != nil {
		client.Close()
		return fmt.Errorf("resolve source %q: %w", c.device.ID, err)
	}

	stream, err := client.NewRecord(
		pulse.Float32Writer(c.onSamples),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(pulseFragmentBytes),
		pulse.RecordMediaName("studymate interview"),
	)
	if err != nil {
		client.Close()
		return fmt.Errorf("create pulse record stream: %w", err)
	}

	c.setRelease(func() {
		stream.Stop()
		stream.Close()
		client.Close()
	})
	stream.Start()
	return nil
}
