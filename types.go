package asyncloader

import "github.com/Swind/go-async-loader/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asyncloader package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// BackgroundOperation pairs a worker body with owner-side callbacks
type BackgroundOperation[T any] = core.BackgroundOperation[T]

// TaskExecutionError reports a panic inside a background body
type TaskExecutionError = core.TaskExecutionError

// Errors
var (
	ErrPoolShutdown    = core.ErrPoolShutdown
	ErrQueueClosed     = core.ErrQueueClosed
	ErrConcurrentDrain = core.ErrConcurrentDrain
)

// Context helpers
var (
	GetCurrentPool = core.GetCurrentPool
	GetWorkerID    = core.GetWorkerID
	IsOwnerContext = core.IsOwnerContext
)
