package worker

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestPoolExecutesTasks(t *testing.T) {
	p := NewPool(2, 16)
	p.Start(context.Background())

	var count int64
	for i := 0; i < 10; i++ {
		ok := p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		})
		if !ok {
			t.Fatalf("submit %d rejected unexpectedly", i)
		}
	}
	p.Stop()

	if got := atomic.LoadInt64(&count); got != 10 {
		t.Errorf("expected 10 executed tasks, got %d", got)
	}
}

func TestSubmitDropsWhenFull(t *testing.T) {
	// No workers started, so the single-slot queue fills immediately.
	p := NewPool(1, 1)

	if !p.Submit(func(ctx context.Context) {}) {
		t.Fatal("expected first submit to be accepted")
	}
	if p.Submit(func(ctx context.Context) {}) {
		t.Error("expected second submit to be dropped")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(1, 4)
	p.Start(context.Background())

	var ran int64
	p.Submit(func(ctx context.Context) {
		panic("task exploded")
	})
	p.Submit(func(ctx context.Context) {
		atomic.AddInt64(&ran, 1)
	})
	p.Stop()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("expected the worker to survive a panicking task")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	p := NewPool(1, 32)
	p.Start(context.Background())

	var count int64
	for i := 0; i < 20; i++ {
		p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		})
	}
	p.Stop()

	if got := atomic.LoadInt64(&count); got != 20 {
		t.Errorf("expected all queued tasks drained on stop, got %d", got)
	}
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(0, 0)
	if p.workers != DefaultWorkers {
		t.Errorf("expected %d workers, got %d", DefaultWorkers, p.workers)
	}
	if cap(p.tasks) != DefaultQueueSize {
		t.Errorf("expected queue size %d, got %d", DefaultQueueSize, cap(p.tasks))
	}
}
