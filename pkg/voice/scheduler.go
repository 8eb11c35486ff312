package voice

import (
	"sync"
	"time"
)

// Fragment is one audio fragment placed on the playback timeline.
type Fragment struct {
	Start    time.Duration
	Duration time.Duration
}

// End returns the time the fragment finishes playing.
func (f Fragment) End() time.Duration {
	return f.Start + f.Duration
}

// Scheduler places audio fragments back to back on a playback timeline.
// Each fragment starts at max(now, cursor) and advances the cursor by its duration,
// so fragments neither overlap nor leave gaps while audio keeps arriving.
type Scheduler struct {
	mu      sync.Mutex
	cursor  time.Duration
	pending []Fragment
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule places a fragment of the given duration and returns its start time.
func (s *Scheduler) Schedule(now, duration time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := now
	if s.cursor > start {
		start = s.cursor
	}
	s.cursor = start + duration
	s.pending = append(s.pending, Fragment{Start: start, Duration: duration})
	return start
}

// Interrupt discards every pending fragment and resets the cursor.
// It returns the number of fragments dropped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = nil
	s.cursor = 0
	return n
}

// Drain forgets fragments that finished playing by now and returns how many remain.
func (s *Scheduler) Drain(now time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := 0
	for i < len(s.pending) && s.pending[i].End() <= now {
		i++
	}
	s.pending = s.pending[i:]
	return len(s.pending)
}

// Pending returns a copy of the fragments still queued.
func (s *Scheduler) Pending() []Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Fragment(nil), s.pending...)
}

// Cursor returns the time at which the next fragment would start if it arrived now or earlier.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
