package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit virtual clock. Tasks only run
// inside Advance, on the caller's goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	tasks  []manualTask
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

type manualTask struct {
	due time.Time
	seq uint64
	ctx context.Context
	fn  func(ctx context.Context)
}

// NewManual creates a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manual{now: start, ctx: ctx, cancel: cancel}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(delay time.Duration, fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.seq++
	m.tasks = append(m.tasks, manualTask{due: m.now.Add(delay), seq: m.seq, ctx: m.ctx, fn: fn})
}

// Advance moves the clock forward by d, running every task that falls due in
// order. Tasks scheduled by a running task are eligible in the same call.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.Slice(m.tasks, func(i, j int) bool {
			if m.tasks[i].due.Equal(m.tasks[j].due) {
				return m.tasks[i].seq < m.tasks[j].seq
			}
			return m.tasks[i].due.Before(m.tasks[j].due)
		})
		if len(m.tasks) == 0 || m.tasks[0].due.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.now = next.due
		m.mu.Unlock()

		if next.ctx.Err() == nil {
			next.fn(next.ctx)
		}
	}
}

func (m *Manual) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	m.tasks = nil
	m.ctx, m.cancel = context.WithCancel(context.Background())
}

func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancel()
	m.tasks = nil
}
