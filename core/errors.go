package core

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by TaskQueue.Push after Close.
	ErrQueueClosed = errors.New("task queue closed")

	// ErrPoolShutdown is returned by WorkerPool.Submit once Shutdown has begun.
	// It wraps ErrQueueClosed.
	ErrPoolShutdown = fmt.Errorf("worker pool shutting down: %w", ErrQueueClosed)

	// ErrConcurrentDrain is returned when DrainAndRun is entered while another
	// drain of the same queue is still running.
	ErrConcurrentDrain = errors.New("completion queue is already being drained")
)

// TaskExecutionError describes a panic recovered from a background body.
type TaskExecutionError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *TaskExecutionError) Error() string {
	if e.Task == "" {
		return fmt.Sprintf("task panicked: %v", e.Value)
	}
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *TaskExecutionError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
