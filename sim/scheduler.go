package sim

import (
	"sync"
	"time"
)

const (
	DefaultMinFillDelay = time.Second
	DefaultMaxFillDelay = 4 * time.Second
)

type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler queues callbacks until Run or RunAll is called. It lets
// tests decide exactly when simulated fills happen.
type ManualScheduler struct {
	mu     sync.Mutex
	tasks  []*manualTask
	delays []time.Duration
}

type manualTask struct {
	s       *ManualScheduler
	f       func()
	stopped bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, f: f}
	s.tasks = append(s.tasks, t)
	s.delays = append(s.delays, d)
	return t
}

// Pending counts queued callbacks that were not stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Delays returns the delay of every callback ever scheduled.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// RunAll fires queued callbacks in scheduling order, including ones queued
// while running, and reports how many ran.
func (s *ManualScheduler) RunAll() int {
	n := 0
	for s.Run() {
		n++
	}
	return n
}

// Run fires the oldest queued callback and reports whether there was one.
func (s *ManualScheduler) Run() bool {
	s.mu.Lock()
	var next *manualTask
	for len(s.tasks) > 0 && next == nil {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if !t.stopped {
			t.stopped = true
			next = t
		}
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}
