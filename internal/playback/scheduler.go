package playback

import (
	"sync"
	"time"

	"github.com/rbright/studymate/internal/pcm"
)

// Source is one scheduled buffer on an Output timeline.
type Source interface {
	Stop()
}

// Output is the audio clock and source factory the scheduler plays through.
// Start returns nil when the output can no longer play.
type Output interface {
	CurrentTime() time.Duration
	Start(buf pcm.Buffer, at time.Duration, onEnded func()) Source
}

// Scheduler queues buffers back-to-back and tracks every source still playing
// so an interruption can cut them all off.
type Scheduler struct {
	out Output

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]Source
	seq       uint64
}

// NewScheduler creates a scheduler with nextStart at zero.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out, active: make(map[uint64]Source)}
}

// Enqueue schedules buf at max(nextStart, now) and returns that start offset.
func (s *Scheduler) Enqueue(buf pcm.Buffer) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.nextStart, s.out.CurrentTime())
	s.seq++
	id := s.seq
	src := s.out.Start(buf, start, func() { s.remove(id) })
	if src == nil {
		return start
	}
	s.active[id] = src
	s.nextStart = start + buf.Duration()
	return start
}

// Interrupt stops every active source, empties the set, and rewinds nextStart
// so the next buffer plays immediately. It returns the number of sources stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	stopped := make([]Source, 0, len(s.active))
	for _, src := range s.active {
		stopped = append(stopped, src)
	}
	clear(s.active)
	s.nextStart = 0
	s.mu.Unlock()

	for _, src := range stopped {
		src.Stop()
	}
	return len(stopped)
}

// Active returns the number of scheduled sources that have not finished.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the offset the next buffer would start at if the clock
// has not caught up with it.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// remove runs from a source's ended callback; ids cleared by Interrupt are ignored.
func (s *Scheduler) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
