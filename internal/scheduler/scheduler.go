package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/calcengine/calcengine/pkg/types"
)

// Task is one unit of work submitted to the scheduler.
type Task struct {
	// Name identifies the task in logs (usually the cache key).
	Name string
	// Priority orders queued tasks; higher runs first.
	Priority int
	// Run performs the calculation. It receives the context passed to
	// Schedule.
	Run func(ctx context.Context) (*types.CalculationResult, error)
}

type outcome struct {
	res *types.CalculationResult
	err error
}

// Options configures a Scheduler.
type Options struct {
	// Workers bounds concurrently running tasks. Defaults to 1.
	Workers int
	// Pressure reports the result cache usage in percent. Optional.
	Pressure func() float64
}

// Scheduler runs tasks on a bounded pool, highest priority first.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	sem      *semaphore.Weighted
	workers  int
	pressure func() float64
	now      func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	queue   taskQueue
	seq     uint64
	running int
	closed  bool
	m       Metrics
}

// New returns a Scheduler with the given options.
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Scheduler{
		sem:      semaphore.NewWeighted(int64(opts.Workers)),
		workers:  opts.Workers,
		pressure: opts.Pressure,
		now:      time.Now,
	}
}

var (
	// ErrClosed is returned by Schedule after Close.
	ErrClosed = errors.New("scheduler: closed")
	// ErrPanicked wraps a panic raised by a task's Run.
	ErrPanicked = errors.New("scheduler: task panicked")
)

// Schedule queues t and blocks until it has run or ctx is done. If ctx ends
// first, ctx.Err() is returned; a task still waiting in the queue is then
// skipped, a running task is left to finish on its own.
func (s *Scheduler) Schedule(ctx context.Context, t Task) (*types.CalculationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	it := &item{task: t, ctx: ctx, done: make(chan outcome, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.seq++
	it.seq = s.seq
	it.queuedAt = s.now()
	heap.Push(&s.queue, it)
	s.mu.Unlock()

	s.dispatch()

	select {
	case out := <-it.done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dispatch starts queued tasks while workers are free.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || !s.sem.TryAcquire(1) {
			s.mu.Unlock()
			return
		}
		it := heap.Pop(&s.queue).(*item)
		if it.ctx.Err() != nil {
			s.m.Skipped++
			s.mu.Unlock()
			s.sem.Release(1)
			slog.Debug("scheduler: skipped abandoned task", "task", it.task.Name)
			continue
		}
		s.running++
		s.mu.Unlock()

		go s.run(it)
	}
}

func (s *Scheduler) run(it *item) {
	start := s.now()
	res, err := exec(it)
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	s.running--
	s.m.AverageComputation = ewma(s.m.AverageComputation, elapsed, s.m.TotalCalculations == 0)
	s.m.LastComputation = elapsed
	s.m.TotalCalculations++
	if err != nil {
		s.m.Failures++
	}
	s.mu.Unlock()
	s.sem.Release(1)

	if err != nil {
		slog.Debug("scheduler: task failed", "task", it.task.Name, "duration", elapsed, "err", err)
	}

	it.done <- outcome{res: res, err: err}
	s.dispatch()
}

// exec calls the task, turning a panic into an error so the worker slot and
// the waiting caller are always released.
func exec(it *item) (res *types.CalculationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: task panicked",
				"task", it.task.Name, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: %s: %v", ErrPanicked, it.task.Name, r)
		}
	}()
	return it.task.Run(it.ctx)
}

// RecordCacheLookup feeds the cache hit rate metric.
func (s *Scheduler) RecordCacheLookup(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.CacheLookups++
	if hit {
		s.m.CacheHits++
	}
}

// Metrics returns a snapshot of the current metrics.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	m := s.m
	m.QueueDepth = s.queue.Len()
	m.Running = s.running
	m.Workers = s.workers
	s.mu.Unlock()

	if m.CacheLookups > 0 {
		m.CacheHitRate = float64(m.CacheHits) / float64(m.CacheLookups) * 100
	}
	if s.pressure != nil {
		m.MemoryPressure = s.pressure()
	}
	return m
}

// Close rejects new tasks and fails every queued task with ErrClosed.
// Running tasks are not interrupted.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	pending := make([]*item, 0, s.queue.Len())
	for s.queue.Len() > 0 {
		pending = append(pending, heap.Pop(&s.queue).(*item))
	}
	s.mu.Unlock()

	for _, it := range pending {
		it.done <- outcome{err: ErrClosed}
	}
}
