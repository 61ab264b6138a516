package core

import "context"

// Task is the unit of work (Closure).
//
// The context carries values only: the pool and worker executing the task,
// or the owner marker for completion items. It is never cancelled per task.
type Task func(ctx context.Context)

// TaskWithResult is a background body producing a value or an error.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the outcome of a TaskWithResult on the owner.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// Submitter accepts tasks for background execution.
type Submitter interface {
	Submit(task Task) error
}

// CompletionSink accepts items that must run on the owner goroutine.
type CompletionSink interface {
	Push(item Task)
}

// =============================================================================
// Context Helper
// =============================================================================

type poolKeyType struct{}
type workerIDKeyType struct{}
type ownerKeyType struct{}

var (
	poolKey     poolKeyType
	workerIDKey workerIDKeyType
	ownerKey    ownerKeyType
)

// GetCurrentPool returns the pool executing the task, or nil when ctx does
// not belong to a worker.
func GetCurrentPool(ctx context.Context) *WorkerPool {
	if v := ctx.Value(poolKey); v != nil {
		return v.(*WorkerPool)
	}
	return nil
}

// GetWorkerID returns the worker index, or -1 outside a worker.
func GetWorkerID(ctx context.Context) int {
	if v := ctx.Value(workerIDKey); v != nil {
		return v.(int)
	}
	return -1
}

// IsOwnerContext reports whether ctx was handed out by a completion drain.
func IsOwnerContext(ctx context.Context) bool {
	v, _ := ctx.Value(ownerKey).(bool)
	return v
}

func withOwner(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownerKey, true)
}
