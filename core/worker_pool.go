package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// numCPU is swapped in tests.
var numCPU = runtime.NumCPU

// DefaultWorkerCount returns the worker count used when none is given.
func DefaultWorkerCount() int {
	if n := numCPU(); n > 0 {
		return n
	}
	return 1
}

// WorkerPool manages a fixed set of worker goroutines consuming one TaskQueue.
//
// Workers are spawned by NewWorkerPool and live until Shutdown. Shutdown drains
// the queue: every task accepted before it is called still runs.
type WorkerPool struct {
	name    string
	workers int
	queue   *TaskQueue
	wg      sync.WaitGroup

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	active    atomic.Int32
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	shutdownOnce sync.Once
	stopped      chan struct{}
}

var _ Submitter = (*WorkerPool)(nil)

// NewWorkerPool creates a pool and starts its workers.
// workers <= 0 selects DefaultWorkerCount(). cfg may be nil.
func NewWorkerPool(name string, workers int, cfg *Config) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}
	cfg = cfg.withDefaults()

	p := &WorkerPool{
		name:                name,
		workers:             workers,
		queue:               NewTaskQueue(),
		logger:              cfg.Logger,
		panicHandler:        cfg.PanicHandler,
		metrics:             cfg.Metrics,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
		stopped:             make(chan struct{}),
	}

	base := context.WithValue(context.Background(), poolKey, p)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workerLoop(i, context.WithValue(base, workerIDKey, i))
	}

	go func() {
		p.wg.Wait()
		close(p.stopped)
	}()

	p.logger.Debug("worker pool started", F("pool", name), F("workers", workers))
	return p
}

// Submit queues task for execution on a worker. It may be called from any
// goroutine, including workers. After Shutdown has begun it returns
// ErrPoolShutdown and the task never runs.
func (p *WorkerPool) Submit(task Task) error {
	if err := p.queue.Push(task); err != nil {
		if err == ErrQueueClosed {
			p.rejected.Add(1)
			p.rejectedTaskHandler.HandleRejectedTask(p.name, "shutting down")
			p.metrics.RecordTaskRejected(p.name, "shutting down")
			return ErrPoolShutdown
		}
		return err
	}
	p.metrics.RecordQueueDepth(p.name, p.queue.Len())
	return nil
}

// Shutdown closes the queue, wakes every worker and waits until all of them
// have drained the queue and exited. It is idempotent.
//
// Calling Shutdown from a task running on this pool deadlocks.
func (p *WorkerPool) Shutdown() {
	p.signalShutdown()
	<-p.stopped
}

// ShutdownContext is Shutdown with a bound on the wait. If ctx ends first the
// workers keep draining in the background and ctx.Err() is returned.
func (p *WorkerPool) ShutdownContext(ctx context.Context) error {
	p.signalShutdown()
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) signalShutdown() {
	p.shutdownOnce.Do(func() {
		p.logger.Debug("worker pool shutting down", F("pool", p.name), F("queued", p.queue.Len()))
		p.queue.Close()
	})
}

// Done is closed once every worker has exited.
func (p *WorkerPool) Done() <-chan struct{} {
	return p.stopped
}

// workerLoop is the main loop for each worker
func (p *WorkerPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()

	for {
		task, ok := p.queue.Pop()
		if !ok {
			// Closed and drained.
			p.logger.Debug("worker stopped", F("pool", p.name), F("worker", id))
			return
		}
		p.runTask(id, ctx, task)
	}
}

// runTask executes one task and recovers its panic so the worker survives.
func (p *WorkerPool) runTask(id int, ctx context.Context, task Task) {
	p.active.Add(1)
	start := time.Now()
	defer func() {
		p.active.Add(-1)
		p.metrics.RecordTaskDuration(p.name, time.Since(start))
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.metrics.RecordTaskPanic(p.name, r)
			p.panicHandler.HandlePanic(ctx, p.name, id, r, debug.Stack())
			return
		}
		p.completed.Add(1)
	}()
	task(ctx)
}

// Name returns the name of the pool
func (p *WorkerPool) Name() string {
	return p.name
}

// WorkerCount returns the number of workers
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueuedTaskCount returns the number of tasks waiting for a worker.
func (p *WorkerPool) QueuedTaskCount() int {
	return p.queue.Len()
}

// ActiveTaskCount returns the number of tasks currently executing.
func (p *WorkerPool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// IsRunning reports whether Shutdown has not been called yet.
func (p *WorkerPool) IsRunning() bool {
	return !p.queue.IsClosed()
}

// Stats returns a snapshot of the pool state.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Name:      p.name,
		Workers:   p.workers,
		Queued:    p.QueuedTaskCount(),
		Active:    p.ActiveTaskCount(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
		Running:   p.IsRunning(),
	}
}
