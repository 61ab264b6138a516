package asyncloader

import (
	"context"
	"errors"
	"sync"

	"github.com/Swind/go-async-loader/core"
)

// ErrNotOpen is returned by a Runtime after Close.
var ErrNotOpen = errors.New("asyncloader: runtime is closed")

// Options configures Open.
type Options struct {
	// Name labels the pool and completion queue in logs and metrics.
	// Defaults to "asyncloader".
	Name string

	// Workers is the pool size; <= 0 means one worker per CPU.
	Workers int

	// Config supplies logger, panic handler, metrics and rejection handler.
	// nil selects core.DefaultConfig().
	Config *core.Config
}

// Runtime owns one worker pool, the completion queue draining into the
// owner and the busy tracker for operations started through Run.
//
// Submit, Complete and Run may be called from any goroutine. Tick and Close
// must be called from the owner.
type Runtime struct {
	name        string
	pool        *core.WorkerPool
	completions *core.CompletionQueue
	busy        core.BusyTracker

	mu     sync.RWMutex
	closed bool
}

var (
	_ core.Submitter      = (*Runtime)(nil)
	_ core.CompletionSink = (*Runtime)(nil)
)

// Open starts the workers and returns a ready runtime.
func Open(opts Options) (*Runtime, error) {
	if opts.Name == "" {
		opts.Name = "asyncloader"
	}
	if opts.Config == nil {
		opts.Config = core.DefaultConfig()
	}
	return &Runtime{
		name:        opts.Name,
		pool:        core.NewWorkerPool(opts.Name, opts.Workers, opts.Config),
		completions: core.NewCompletionQueue(opts.Name+"-completions", opts.Config),
	}, nil
}

// Submit queues task on a worker.
func (r *Runtime) Submit(task Task) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrNotOpen
	}
	return r.pool.Submit(task)
}

// Complete queues item for the next Tick. Items are still accepted while
// Close is draining the pool.
func (r *Runtime) Complete(item Task) {
	r.completions.Push(item)
}

// Push is Complete; it lets the runtime serve as a core.CompletionSink.
func (r *Runtime) Push(item Task) {
	r.Complete(item)
}

// Tick runs every completion item queued so far and returns how many ran.
func (r *Runtime) Tick(ctx context.Context) (int, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return 0, ErrNotOpen
	}
	return r.completions.DrainAndRun(ctx)
}

// Busy reports whether an operation started with Run is still outstanding.
func (r *Runtime) Busy() bool {
	return r.busy.Busy()
}

// BusyTracker returns the tracker Run uses, for sharing with other components.
func (r *Runtime) BusyTracker() *core.BusyTracker {
	return &r.busy
}

// Pool returns the underlying worker pool.
func (r *Runtime) Pool() *core.WorkerPool {
	return r.pool
}

// Completions returns the underlying completion queue.
func (r *Runtime) Completions() *core.CompletionQueue {
	return r.completions
}

// NewOwnerLoop returns a loop that ticks this runtime's completion queue.
// Do not call Tick while the loop runs.
func (r *Runtime) NewOwnerLoop(cfg core.OwnerLoopConfig) *core.OwnerLoop {
	return core.NewOwnerLoop(r.completions, cfg)
}

// RuntimeStats is a snapshot of a Runtime.
type RuntimeStats struct {
	Pool        core.PoolStats
	Completions core.CompletionStats
	Pending     int
	Closed      bool
}

// Stats returns a snapshot of the pool, completion queue and busy tracker.
func (r *Runtime) Stats() RuntimeStats {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	return RuntimeStats{
		Pool:        r.pool.Stats(),
		Completions: r.completions.Stats(),
		Pending:     r.busy.Pending(),
		Closed:      closed,
	}
}

// Close stops accepting work, waits for the workers to finish every queued
// task and then runs the completions they produced. Later calls return
// ErrNotOpen.
//
// Close must run on the owner, outside any completion item.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrNotOpen
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.Shutdown()
	_, err := r.completions.DrainAndRun(context.Background())
	return err
}

// Run submits op on rt. Busy is tracked on rt unless op.Busy is set.
func Run[T any](rt *Runtime, op core.BackgroundOperation[T]) error {
	if op.Busy == nil {
		op.Busy = &rt.busy
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.closed {
		return ErrNotOpen
	}
	return core.PostBackgroundOperation(rt.pool, rt.completions, op)
}
