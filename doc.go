// Package asyncloader runs slow work on a fixed pool of worker goroutines
// and hands the results back to a single owner goroutine.
//
// Some state may only be touched from one goroutine: a GPU context, a scene
// graph, a UI model. Workers never write to it. Instead each background task
// ends by pushing a completion item onto a queue that the owner drains once
// per tick, so every write to owner state happens on the owner.
//
// # Quick Start
//
// Open a runtime at application startup and close it from the owner:
//
//	rt, _ := asyncloader.Open(asyncloader.Options{Workers: 4})
//	defer rt.Close()
//
// Start a background operation whose result is applied on the owner:
//
//	asyncloader.Run(rt, asyncloader.BackgroundOperation[[]byte]{
//		Name: "read config",
//		Run: func(ctx context.Context) ([]byte, error) {
//			return os.ReadFile("app.yaml")
//		},
//		Apply: func(ctx context.Context, data []byte) {
//			state.config = data // owner-only
//		},
//		OnError: func(ctx context.Context, err error) {
//			state.lastErr = err
//		},
//	})
//
// Drive the owner side from your main loop:
//
//	for !quit {
//		rt.Tick(ctx)
//		drawFrame(rt.Busy())
//	}
//
// or let core.OwnerLoop tick on a dedicated goroutine, optionally pinned to
// its OS thread.
//
// # Key Concepts
//
// WorkerPool: N goroutines consuming one FIFO queue. Shutdown drains every
// task queued before it; submissions after it are rejected with
// ErrPoolShutdown.
//
// CompletionQueue: a second, independently locked FIFO. Workers push, the
// owner drains. Items run outside the lock in the order producers finished,
// not the order work was submitted.
//
// BackgroundOperation: Run on a worker, then exactly one of Apply or OnError
// on the owner. A panic in Run arrives at OnError as *TaskExecutionError.
//
// # Contract
//
// A completion item must not wait on the pool, and a worker must not shut the
// pool down. Both deadlock and neither is detected.
package asyncloader
