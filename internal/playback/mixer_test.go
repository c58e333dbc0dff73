package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/studymate/internal/pcm"
	"github.com/stretchr/testify/require"
)

func TestMixerClockAdvancesWithRender(t *testing.T) {
	m := NewMixer(24000)
	require.Zero(t, m.CurrentTime())

	m.Render(make([]int16, 2400))
	require.Equal(t, 100*time.Millisecond, m.CurrentTime())
	require.Equal(t, 24000, m.SampleRate())
}

func TestMixerPlacesSourceAtOffset(t *testing.T) {
	m := NewMixer(24000)
	m.Start(constant(1, 10), pcm.FramesToDuration(5, 24000), nil)

	out := make([]int16, 20)
	m.Render(out)
	for i := 0; i < 5; i++ {
		require.Zero(t, out[i])
	}
	for i := 5; i < 15; i++ {
		require.Equal(t, int16(32767), out[i])
	}
	for i := 15; i < 20; i++ {
		require.Zero(t, out[i])
	}
}

func TestMixerEndedFiresOnceAfterSourceRendered(t *testing.T) {
	m := NewMixer(24000)
	var ended atomic.Int32
	m.Start(constant(0.1, 30), 0, func() { ended.Add(1) })

	m.Render(make([]int16, 20))
	require.Zero(t, ended.Load())
	m.Render(make([]int16, 20))
	require.Equal(t, int32(1), ended.Load())
	m.Render(make([]int16, 20))
	require.Equal(t, int32(1), ended.Load())
}

func TestMixerStopSilencesAndFiresEndedOnce(t *testing.T) {
	m := NewMixer(24000)
	var ended atomic.Int32
	src := m.Start(constant(0.5, 1000), 0, func() { ended.Add(1) })

	src.Stop()
	src.Stop()
	require.Equal(t, int32(1), ended.Load())

	out := make([]int16, 10)
	m.Render(out)
	require.Equal(t, make([]int16, 10), out)
}

func TestMixerPastOffsetsStartNow(t *testing.T) {
	m := NewMixer(24000)
	m.Render(make([]int16, 100))

	m.Start(constant(1, 4), 0, nil)
	out := make([]int16, 4)
	m.Render(out)
	require.Equal(t, []int16{32767, 32767, 32767, 32767}, out)
}

func TestMixerResamplesAndDownmixes(t *testing.T) {
	m := NewMixer(24000)
	stereo := pcm.Buffer{
		SampleRate: 12000,
		Channels:   2,
		Data:       [][]float32{{1, 0}, {0, 0}},
	}
	m.Start(stereo, 0, nil)

	out := make([]int16, 4)
	m.Render(out)
	half := floatToSample(0.5)
	require.Equal(t, []int16{half, half, 0, 0}, out)
}

func TestMixerMixesOverlapsWithClipping(t *testing.T) {
	m := NewMixer(24000)
	m.Start(constant(0.75, 4), 0, nil)
	m.Start(constant(0.75, 4), 0, nil)

	out := make([]int16, 4)
	m.Render(out)
	require.Equal(t, []int16{32767, 32767, 32767, 32767}, out)
}

func TestMixerCloseStopsEverything(t *testing.T) {
	m := NewMixer(24000)
	var ended atomic.Int32
	m.Start(constant(0.5, 100), 0, func() { ended.Add(1) })
	m.Start(constant(0.5, 100), 0, func() { ended.Add(1) })

	m.Close()
	m.Close()
	require.Equal(t, int32(2), ended.Load())
	require.Zero(t, m.Active())

	before := m.CurrentTime()
	out := []int16{1, 2, 3}
	m.Render(out)
	require.Equal(t, []int16{0, 0, 0}, out)
	require.Equal(t, before, m.CurrentTime())

	require.Nil(t, m.Start(constant(0.5, 10), 0, nil))
	require.Zero(t, m.Active())
}

func TestMixerZeroLengthSourceEndsOnNextRender(t *testing.T) {
	m := NewMixer(24000)
	var ended atomic.Int32
	m.Start(pcm.Buffer{SampleRate: 24000, Channels: 1, Data: [][]float32{{}}}, 0, func() { ended.Add(1) })
	m.Render(make([]int16, 1))
	require.Equal(t, int32(1), ended.Load())
}
