package core

import (
	"context"
	"errors"
	"runtime/debug"
)

// =============================================================================
// Background Operation
// =============================================================================

// BackgroundOperation pairs a worker-side body with owner-side callbacks.
//
// Run executes on a worker. Exactly one of Apply or OnError is then invoked,
// always through the completion queue, so both may touch owner-only state.
type BackgroundOperation[T any] struct {
	// Name identifies the operation in errors and logs.
	Name string

	// Run computes the result. A panic is converted to *TaskExecutionError.
	Run TaskWithResult[T]

	// Apply receives a successful result on the owner.
	Apply func(ctx context.Context, result T)

	// OnError receives the failure on the owner. May be nil.
	OnError func(ctx context.Context, err error)

	// Busy, when set, is held from submission until Apply or OnError returns.
	Busy *BusyTracker
}

// PostBackgroundOperation submits op.Run to pool and routes its outcome to
// completions. If pool rejects the task, Busy is released and the error is
// returned; no callback runs.
func PostBackgroundOperation[T any](pool Submitter, completions CompletionSink, op BackgroundOperation[T]) error {
	if op.Run == nil {
		return errors.New("background operation: nil Run")
	}
	if op.Busy != nil {
		op.Busy.Enter()
	}

	wrappedTask := func(ctx context.Context) {
		result, err := runRecovered(ctx, op.Name, op.Run)

		completions.Push(func(ctx context.Context) {
			if op.Busy != nil {
				defer op.Busy.Leave()
			}
			if err != nil {
				if op.OnError != nil {
					op.OnError(ctx, err)
				}
				return
			}
			if op.Apply != nil {
				op.Apply(ctx, result)
			}
		})
	}

	if err := pool.Submit(wrappedTask); err != nil {
		if op.Busy != nil {
			op.Busy.Leave()
		}
		return err
	}
	return nil
}

// runRecovered calls run and turns a panic into a *TaskExecutionError.
func runRecovered[T any](ctx context.Context, name string, run TaskWithResult[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskExecutionError{Task: name, Value: r, Stack: debug.Stack()}
		}
	}()
	return run(ctx)
}

// =============================================================================
// Task and Reply Pattern
// =============================================================================

// PostTaskAndReply executes task on pool, then pushes reply to completions.
// If task panics, reply will not be executed; the panic is reported by the
// pool's PanicHandler.
func PostTaskAndReply(pool Submitter, completions CompletionSink, task Task, reply Task) error {
	if completions == nil || reply == nil {
		// No reply requested, just execute the task
		return pool.Submit(task)
	}

	wrappedTask := func(ctx context.Context) {
		task(ctx)
		// Only reached when task returned normally.
		completions.Push(reply)
	}
	return pool.Submit(wrappedTask)
}

// PostTaskAndReplyWithResult executes a task that returns a result of type T and an error,
// then passes that result to a reply callback on the owner.
//
// Unlike PostTaskAndReply, a panic in task is delivered to reply as a
// *TaskExecutionError, so reply always runs exactly once.
//
// Example:
//
//	PostTaskAndReplyWithResult(
//	    pool, completions,
//	    func(ctx context.Context) (int, error) {
//	        return len("Hello"), nil
//	    },
//	    func(ctx context.Context, length int, err error) {
//	        fmt.Printf("Length: %d\n", length)
//	    },
//	)
func PostTaskAndReplyWithResult[T any](
	pool Submitter,
	completions CompletionSink,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
) error {
	return PostBackgroundOperation(pool, completions, BackgroundOperation[T]{
		Run: task,
		Apply: func(ctx context.Context, result T) {
			reply(ctx, result, nil)
		},
		OnError: func(ctx context.Context, err error) {
			var zero T
			reply(ctx, zero, err)
		},
	})
}
