// Package playback schedules decoded audio buffers onto an output timeline
// so that they play back to back, in arrival order, without gaps or overlap.
package playback

import (
	"math"
	"sync"

	"github.com/lokutor-ai/luminary/pkg/audio"
)

// Clock reports the output device position in seconds. It never goes backwards.
type Clock interface {
	Now() float64
}

// Voice is a scheduled buffer on an Output.
type Voice interface {
	// Stop silences the voice immediately. The onEnded callback passed to
	// Schedule is not invoked for a stopped voice.
	Stop()
}

// Output is an audio graph that can play a buffer at a point on its clock.
type Output interface {
	Clock
	// Schedule queues buf to start at the given time, or later if that time
	// has already been rendered, and returns the start time actually used.
	// onEnded is called once the buffer finishes playing naturally, never
	// from within Schedule.
	Schedule(buf audio.Buffer, at float64, onEnded func()) (Voice, float64, error)
}

// Scheduler keeps the playback cursor for one session.
type Scheduler struct {
	out Output

	mu      sync.Mutex
	cursor  float64
	nextID  uint64
	pending map[uint64]Voice
}

// NewScheduler creates a scheduler writing to out with the cursor at 0.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:     out,
		pending: make(map[uint64]Voice),
	}
}

// Enqueue schedules buf at max(cursor, now) and advances the cursor by the
// buffer duration straight away, so the next buffer lines up behind it even
// if it arrives before this one has started. The cursor follows the start
// the output actually used: the device may render between Now and Schedule.
func (s *Scheduler) Enqueue(buf audio.Buffer) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := math.Max(s.cursor, s.out.Now())
	s.nextID++
	id := s.nextID

	v, start, err := s.out.Schedule(buf, at, func() { s.release(id) })
	if err != nil {
		return 0, err
	}
	start = math.Max(start, at)
	s.pending[id] = v
	s.cursor = start + buf.Duration()
	return start, nil
}

func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Stop force-stops every pending voice and rewinds the cursor. It returns
// the number of voices that were cut off.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pending)
	for id, v := range s.pending {
		v.Stop()
		delete(s.pending, id)
	}
	s.cursor = 0
	return n
}

// Pending returns the number of voices scheduled but not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
