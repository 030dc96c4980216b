// Package worker provides a bounded background task pool for fire-and-forget
// side effects: outbound channel delivery, lead capture, webhook notification.
//
// The queue is bounded and submission never blocks: when the queue is full
// the task is dropped with a warning, which keeps webhook handlers fast under
// load instead of building unbounded backlog.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Constants for worker pool configuration
const (
	// DefaultWorkers is the number of concurrent task runners.
	DefaultWorkers = 4
	// DefaultQueueSize bounds the number of pending tasks.
	DefaultQueueSize = 256
)

// Task is a unit of background work. The context passed to Start is
// forwarded so cancellation propagates to in-flight work.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed set of worker goroutines.
type Pool struct {
	tasks   chan Task
	workers int
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPool creates a pool with the given worker count and queue size.
// Non-positive values fall back to the defaults.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		tasks:   make(chan Task, queueSize),
		workers: workers,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("Worker pool started", "workers", p.workers, "queueSize", cap(p.tasks))
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(ctx, id, task)
	}
}

// execute runs one task, containing panics so a misbehaving task cannot take
// down its worker.
func (p *Pool) execute(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker task panicked", "worker", id, "panic", r)
		}
	}()
	task(ctx)
}

// Submit enqueues a task without blocking. It reports false when the queue
// is full and the task was dropped. Submit must not be called after Stop.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		slog.Warn("Worker pool queue full, dropping task", "queueSize", cap(p.tasks))
		return false
	}
}

// Stop closes the intake and blocks until all queued tasks have drained.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
	slog.Info("Worker pool stopped")
}
