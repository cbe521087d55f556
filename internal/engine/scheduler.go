package engine

import (
	"sync"
	"time"
)

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler debounces tasks: scheduling a task cancels the one still
// pending, so at most one task waits at a time and only the last task of a
// burst runs.
type Scheduler struct {
	delay     time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	pending bool
	closed  bool
}

// NewScheduler returns a scheduler that waits delay after the last Schedule
// call. A nil afterFunc uses time.AfterFunc.
func NewScheduler(delay time.Duration, afterFunc AfterFunc) *Scheduler {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{delay: delay, afterFunc: afterFunc}
}

// Schedule replaces any pending task with task. It reports false once the
// scheduler is closed.
func (s *Scheduler) Schedule(task func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = s.afterFunc(s.delay, func() {
		s.mu.Lock()
		// a superseded timer that fired before Stop took effect
		if s.gen != gen || !s.pending || s.closed {
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.timer = nil
		s.mu.Unlock()
		task()
	})
	return true
}

// Cancel drops the pending task, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Pending reports whether a task is waiting to run.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Close cancels the pending task and rejects further scheduling.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
}
