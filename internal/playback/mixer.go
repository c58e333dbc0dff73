// Package playback schedules decoded speech for gapless output and flushes it
// on barge-in.
package playback

import (
	"math"
	"sync"
	"time"

	"github.com/rbright/studymate/internal/pcm"
)

// Mixer is the output audio context: a sample clock advanced by whoever pulls
// PCM through Render, plus the set of sources placed on that clock.
type Mixer struct {
	rate int

	mu       sync.Mutex
	position int64
	voices   map[*voice]struct{}
	closed   bool
}

type voice struct {
	mixer  *Mixer
	buf    pcm.Buffer
	start  int64
	length int64

	endOnce sync.Once
	onEnded func()
}

// NewMixer creates a mono mixer running at rate samples per second.
func NewMixer(rate int) *Mixer {
	if rate <= 0 {
		rate = pcm.OutputSampleRate
	}
	return &Mixer{rate: rate, voices: make(map[*voice]struct{})}
}

// SampleRate returns the mixer output rate.
func (m *Mixer) SampleRate() int {
	return m.rate
}

// CurrentTime reports how much audio has been rendered so far.
func (m *Mixer) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pcm.FramesToDuration(int(m.position), m.rate)
}

// Start places buf on the timeline at offset at. Offsets already rendered are
// moved to the current position. onEnded runs once when the source finishes
// or is stopped, never from inside Start. A closed mixer starts nothing and
// returns nil.
func (m *Mixer) Start(buf pcm.Buffer, at time.Duration, onEnded func()) Source {
	v := &voice{
		mixer:   m,
		buf:     buf,
		start:   durationToFrames(at, m.rate),
		length:  resampledLength(buf, m.rate),
		onEnded: onEnded,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if v.start < m.position {
		v.start = m.position
	}
	m.voices[v] = struct{}{}
	return v
}

// Render fills out with the next len(out) mono samples and advances the clock.
func (m *Mixer) Render(out []int16) int {
	mix := make([]float64, len(out))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		clear(out)
		return len(out)
	}

	from := m.position
	to := from + int64(len(out))
	var finished []*voice
	for v := range m.voices {
		v.mixInto(mix, from, to, m.rate)
		if v.start+v.length <= to {
			finished = append(finished, v)
			delete(m.voices, v)
		}
	}
	m.position = to
	m.mu.Unlock()

	for i, s := range mix {
		out[i] = floatToSample(s)
	}
	for _, v := range finished {
		v.ended()
	}
	return len(out)
}

// Active returns the number of sources still on the timeline.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close stops every source and freezes the clock. Later renders are silent.
func (m *Mixer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stopped := make([]*voice, 0, len(m.voices))
	for v := range m.voices {
		stopped = append(stopped, v)
	}
	clear(m.voices)
	m.mu.Unlock()

	for _, v := range stopped {
		v.ended()
	}
}

// Stop silences the source immediately.
func (v *voice) Stop() {
	m := v.mixer
	m.mu.Lock()
	delete(m.voices, v)
	m.mu.Unlock()
	v.ended()
}

func (v *voice) ended() {
	v.endOnce.Do(func() {
		if v.onEnded != nil {
			v.onEnded()
		}
	})
}

// mixInto adds this voice's contribution for mixer frames [from, to).
func (v *voice) mixInto(mix []float64, from, to int64, rate int) {
	begin := max(v.start, from)
	end := min(v.start+v.length, to)
	if begin >= end || v.buf.Channels == 0 {
		return
	}

	frames := int64(v.buf.Frames())
	for f := begin; f < end; f++ {
		src := (f - v.start) * int64(v.buf.SampleRate) / int64(rate)
		if src >= frames {
			break
		}
		var sum float64
		for ch := 0; ch < v.buf.Channels; ch++ {
			sum += float64(v.buf.Data[ch][src])
		}
		mix[f-from] += sum / float64(v.buf.Channels)
	}
}

func resampledLength(buf pcm.Buffer, rate int) int64 {
	if buf.SampleRate <= 0 {
		return 0
	}
	return int64(buf.Frames()) * int64(rate) / int64(buf.SampleRate)
}

func durationToFrames(d time.Duration, rate int) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Round(d.Seconds() * float64(rate)))
}

func floatToSample(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(s * math.MaxInt16))
}
