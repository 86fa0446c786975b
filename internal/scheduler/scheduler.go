// Package scheduler runs one-shot callbacks at absolute wall-clock times.
//
// Each scheduled job gets its own timer. The returned cancel function is
// idempotent; after it returns the callback will not start, although a
// callback that already started keeps running. Callers that need
// exactly-once semantics must guard the callback themselves.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns the set of pending jobs. It is safe for concurrent use.
type Scheduler struct {
	// Now is the clock used to turn absolute times into delays.
	Now func() time.Time

	mu      sync.Mutex
	pending map[*job]struct{}
	stopped bool
}

type job struct {
	timer *time.Timer
}

// New returns a Scheduler using the system clock.
func New() *Scheduler {
	return &Scheduler{
		Now:     time.Now,
		pending: make(map[*job]struct{}),
	}
}

// ScheduleAt runs fn in its own goroutine at (or right after) at. Times in the
// past fire immediately. The returned function cancels the job.
func (s *Scheduler) ScheduleAt(at time.Time, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return func() {}
	}

	j := &job{}
	delay := at.Sub(s.Now())
	if delay < 0 {
		delay = 0
	}
	j.timer = time.AfterFunc(delay, func() {
		if !s.remove(j) {
			return
		}
		fn()
	})
	s.pending[j] = struct{}{}

	return func() {
		if s.remove(j) {
			j.timer.Stop()
		}
	}
}

// remove deletes j from the pending set and reports whether it was present.
// Whoever removes a job first decides its fate: fire or cancel.
func (s *Scheduler) remove(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[j]; !ok {
		return false
	}
	delete(s.pending, j)
	return true
}

// Pending returns the number of jobs that have neither fired nor been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending job and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for j := range s.pending {
		j.timer.Stop()
		delete(s.pending, j)
	}
}
