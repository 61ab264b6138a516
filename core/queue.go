package core

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"github.com/jacobsa/syncutil"
)

// TaskQueue is an unbounded FIFO of tasks with a blocking Pop.
//
// Workers wait on cond until a task arrives or the queue is closed. The closed
// flag is only read and written under mu, so a Close can never slip between a
// worker's predicate check and its Wait.
type TaskQueue struct {
	mu   syncutil.InvariantMutex
	cond *sync.Cond

	// Ring buffer of Task values. eapache/queue shrinks the ring once it is a
	// quarter full, so bursts do not pin memory.
	//
	// GUARDED_BY(mu)
	// INVARIANT: Every element is a non-nil Task
	items *queue.Queue

	// GUARDED_BY(mu)
	// INVARIANT: pushed - popped == items.Length()
	pushed uint64
	popped uint64

	// Set once by Close, never cleared.
	//
	// GUARDED_BY(mu)
	closed bool
}

// NewTaskQueue returns an empty, open queue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{
		items: queue.New(),
	}
	q.mu = syncutil.NewInvariantMutex(q.checkInvariants)
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *TaskQueue) checkInvariants() {
	if n := uint64(q.items.Length()); q.pushed-q.popped != n {
		panic(fmt.Sprintf("TaskQueue: pushed %d - popped %d != length %d", q.pushed, q.popped, n))
	}
}

// Push appends t to the tail and wakes one waiting worker.
// It returns ErrQueueClosed once Close has been called.
func (q *TaskQueue) Push(t Task) error {
	if t == nil {
		return fmt.Errorf("push: nil task")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items.Add(t)
	q.pushed++
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Pop blocks until a task is available or the queue is closed and empty.
// ok is false only in the latter case, which tells the worker to stop.
func (q *TaskQueue) Pop() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.items.Length() == 0 {
		// Closed and drained.
		return nil, false
	}

	t = q.items.Remove().(Task)
	q.popped++
	return t, true
}

// TryPop removes the head without blocking.
func (q *TaskQueue) TryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return nil, false
	}
	t := q.items.Remove().(Task)
	q.popped++
	return t, true
}

// Close rejects further pushes and wakes every waiter. Tasks already queued
// are still handed out by Pop. Close is idempotent.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// IsClosed reports whether Close has been called.
func (q *TaskQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// IsEmpty reports whether no task is queued.
func (q *TaskQueue) IsEmpty() bool {
	return q.Len() == 0
}
