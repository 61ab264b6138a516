package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// CompletionQueue collects items produced on workers that must run on the
// owner goroutine. Any goroutine may Push; only the owner drains.
//
// Its lock is independent of every TaskQueue lock, and items never run while
// it is held, so an item may freely push further completions or submit work.
type CompletionQueue struct {
	name string

	mu    sync.Mutex
	items []Task // GUARDED_BY(mu)

	draining atomic.Bool
	applied  atomic.Int64
	panicked atomic.Int64

	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
}

var _ CompletionSink = (*CompletionQueue)(nil)

// NewCompletionQueue returns an empty queue. cfg may be nil.
func NewCompletionQueue(name string, cfg *Config) *CompletionQueue {
	cfg = cfg.withDefaults()
	return &CompletionQueue{
		name:         name,
		logger:       cfg.Logger,
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
	}
}

// Name returns the queue name.
func (q *CompletionQueue) Name() string {
	return q.name
}

// Push appends item. It never fails and never blocks for long; nil items are
// ignored.
func (q *CompletionQueue) Push(item Task) {
	if item == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Drain removes and returns everything queued, in push order. An empty queue
// yields an empty result and no side effects.
func (q *CompletionQueue) Drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	batch := q.items
	q.items = nil
	return batch
}

// DrainAndRun drains the queue and runs every item on the calling goroutine,
// outside the lock, with a context marked as owner context. Items pushed while
// it runs are left for the next call. It returns the number of items run.
//
// A panicking item is recovered and reported; the remaining items still run.
// Overlapping calls return ErrConcurrentDrain without draining.
func (q *CompletionQueue) DrainAndRun(ctx context.Context) (int, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return 0, ErrConcurrentDrain
	}
	defer q.draining.Store(false)

	batch := q.Drain()
	if len(batch) == 0 {
		return 0, nil
	}

	ownerCtx := withOwner(ctx)
	for i := range batch {
		q.runItem(ownerCtx, batch[i])
		// Release the closure as soon as it has run.
		batch[i] = nil
	}

	q.applied.Add(int64(len(batch)))
	q.metrics.RecordCompletionsApplied(q.name, len(batch))
	q.metrics.RecordQueueDepth(q.name, q.Len())
	return len(batch), nil
}

func (q *CompletionQueue) runItem(ctx context.Context, item Task) {
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			q.metrics.RecordTaskPanic(q.name, r)
			q.panicHandler.HandlePanic(ctx, q.name, -1, r, debug.Stack())
		}
	}()
	item(ctx)
}

// Len returns the number of pending items.
func (q *CompletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of the queue state.
func (q *CompletionQueue) Stats() CompletionStats {
	return CompletionStats{
		Name:     q.name,
		Pending:  q.Len(),
		Applied:  q.applied.Load(),
		Panicked: q.panicked.Load(),
		Draining: q.draining.Load(),
	}
}
