// Package scheduler runs delayed work that can be cancelled as a group.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs fn after delay. Every task receives a context that is
// cancelled by CancelAll or Close; tasks that have not started by then are
// dropped.
type Scheduler interface {
	Schedule(delay time.Duration, fn func(ctx context.Context))
	CancelAll()
	Pending() int
	Close()
}

// Timer is the wall-clock Scheduler backed by time.AfterFunc.
type Timer struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timers  map[uint64]*time.Timer
	nextID  uint64
	closed  bool
	running sync.WaitGroup
}

// NewTimer creates a Timer scheduler.
func NewTimer() *Timer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Timer{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[uint64]*time.Timer),
	}
}

// Schedule registers fn to run after delay. Scheduling on a closed Timer is
// a no-op.
func (s *Timer) Schedule(delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	id := s.nextID
	s.nextID++
	ctx := s.ctx
	s.running.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() {
		defer s.running.Done()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
}

// CancelAll stops every queued task and cancels the context of tasks that
// are already running. The scheduler stays usable.
func (s *Timer) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *Timer) cancelLocked() {
	s.cancel()
	for id, t := range s.timers {
		if t.Stop() {
			s.running.Done()
		}
		delete(s.timers, id)
	}
}

// Pending returns the number of tasks not yet started.
func (s *Timer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels everything and waits for running tasks to return.
func (s *Timer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelLocked()
	s.mu.Unlock()
	s.running.Wait()
}
