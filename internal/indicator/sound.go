package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/studymate/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueError
)

const cueSampleRate = 16000

type tone struct {
	hz     float64
	length time.Duration
	gain   float64
}

var cueTones = map[cueKind][]tone{
	cueStart:    {{hz: 660, length: 60 * time.Millisecond, gain: 0.16}, {hz: 990, length: 80 * time.Millisecond, gain: 0.16}},
	cueStop:     {{hz: 990, length: 60 * time.Millisecond, gain: 0.16}, {hz: 660, length: 90 * time.Millisecond, gain: 0.16}},
	cueComplete: {{hz: 784, length: 60 * time.Millisecond, gain: 0.16}, {hz: 988, length: 60 * time.Millisecond, gain: 0.16}, {hz: 1319, length: 90 * time.Millisecond, gain: 0.16}},
	cueError:    {{hz: 330, length: 150 * time.Millisecond, gain: 0.2}},
}

// emitCue plays the configured cue file, falling back to a synthesized tone.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" && len(cfg.CuePlayer.Argv) > 0 {
		if err := playCueFile(ctx, cfg.CuePlayer.Argv, path); err == nil {
			return nil
		}
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playSynthCue(ctx, samples)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	switch kind {
	case cueStart:
		return expandUserPath(cfg.SoundStartFile)
	case cueStop:
		return expandUserPath(cfg.SoundStopFile)
	case cueComplete:
		return expandUserPath(cfg.SoundCompleteFile)
	case cueError:
		return expandUserPath(cfg.SoundErrorFile)
	default:
		return ""
	}
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

func playCueFile(ctx context.Context, player []string, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	argv := append(append([]string(nil), player[1:]...), path)
	if err := exec.CommandContext(ctx, player[0], argv...).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playSynthCue(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("studymate"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil || cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("studymate cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil && !errors.Is(err, pulse.EndOfData) {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return ctx.Err()
}

func cueSamples(kind cueKind) []int16 {
	return synthesizeCue(cueTones[kind])
}

// synthesizeCue joins tones with a short silent gap.
func synthesizeCue(tones []tone) []int16 {
	gap := make([]int16, samplesForDuration(20*time.Millisecond))
	var out []int16
	for i, t := range tones {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, synthesizeTone(t)...)
	}
	return out
}

// synthesizeTone renders a sine with a linear ramp of at most 5ms at each end.
func synthesizeTone(t tone) []int16 {
	n := samplesForDuration(t.length)
	if n <= 0 || t.hz <= 0 || t.gain <= 0 {
		return nil
	}
	ramp := max(1, min(n/10, cueSampleRate/200))

	out := make([]int16, n)
	for i := range out {
		envelope := min(1, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		out[i] = int16(math.Round(math.Sin(phase) * t.gain * envelope * math.MaxInt16))
	}
	return out
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
