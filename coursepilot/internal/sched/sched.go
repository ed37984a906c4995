// CLAUDE:SUMMARY Single-goroutine task scheduler: one-shot and recurring tasks on a heap, cancellation by handle, commands serialized with the tasks.
// Package sched runs timed tasks and submitted commands on one goroutine.
// Nothing scheduled here ever runs concurrently with anything else
// scheduled on the same Scheduler.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("sched: scheduler stopped")

// TaskID identifies a scheduled task. The zero value is never issued.
type TaskID uint64

type task struct {
	id    TaskID
	at    time.Time
	every time.Duration
	seq   uint64
	fn    func()
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler owns a task queue. After, Every, Cancel and Pending are safe
// from any goroutine; task bodies and Do commands run only inside Run
// (or inside RunDue when the caller drives the scheduler by hand).
type Scheduler struct {
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	tasks  taskHeap
	byID   map[TaskID]*task
	lastID TaskID
	seq    uint64

	cmds    chan func()
	wake    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLogger sets the logger used for recovered task panics.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// New creates an idle Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   System,
		logger:  slog.Default(),
		byID:    make(map[TaskID]*task),
		cmds:    make(chan func()),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now reads the scheduler clock.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// After schedules fn once, d from now.
func (s *Scheduler) After(d time.Duration, fn func()) TaskID {
	return s.add(d, 0, fn)
}

// Every schedules fn every d, first run d from now.
func (s *Scheduler) Every(d time.Duration, fn func()) TaskID {
	if d <= 0 {
		d = time.Millisecond
	}
	return s.add(d, d, fn)
}

func (s *Scheduler) add(d, every time.Duration, fn func()) TaskID {
	s.mu.Lock()
	s.lastID++
	s.seq++
	t := &task{id: s.lastID, at: s.clock.Now().Add(d), every: every, seq: s.seq, fn: fn}
	heap.Push(&s.tasks, t)
	s.byID[t.id] = t
	s.mu.Unlock()
	s.poke()
	return t.id
}

// Cancel removes a task. It reports whether the task was still pending.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	if t.index >= 0 {
		heap.Remove(&s.tasks, t.index)
	}
	return true
}

// Pending counts scheduled tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// RunDue runs every task due at the current clock reading, in due order,
// including tasks that become due while running. It returns how many ran.
func (s *Scheduler) RunDue() int {
	ran := 0
	for {
		fn, ok := s.popDue()
		if !ok {
			return ran
		}
		s.exec(fn)
		ran++
	}
}

func (s *Scheduler) popDue() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil, false
	}
	now := s.clock.Now()
	t := s.tasks[0]
	if t.at.After(now) {
		return nil, false
	}
	if t.every > 0 {
		next := t.at.Add(t.every)
		if !next.After(now) {
			next = now.Add(t.every)
		}
		t.at = next
		s.seq++
		t.seq = s.seq
		heap.Fix(&s.tasks, t.index)
	} else {
		heap.Pop(&s.tasks)
		delete(s.byID, t.id)
	}
	return t.fn, true
}

func (s *Scheduler) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sched: task panic recovered", "panic", r)
		}
	}()
	fn()
}

func (s *Scheduler) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return 0, false
	}
	return s.tasks[0].at.Sub(s.clock.Now()), true
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks and commands until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.once.Do(func() { close(s.stopped) })
	for {
		s.RunDue()

		var timer <-chan time.Time
		if d, ok := s.nextWait(); ok {
			timer = s.clock.After(d)
		}

		select {
		case <-ctx.Done():
			return
		case fn := <-s.cmds:
			s.exec(fn)
		case <-s.wake:
		case <-timer:
		}
	}
}

// Do runs fn on the Run goroutine and waits for it to return.
// Calling Do from inside a task or command deadlocks.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
