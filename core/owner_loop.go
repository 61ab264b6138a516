package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// FrameFunc is called once per tick on the owner goroutine, after pending
// completions have been applied. dt is the time since the previous tick.
type FrameFunc func(ctx context.Context, dt time.Duration)

// OwnerLoopConfig configures an OwnerLoop.
type OwnerLoopConfig struct {
	// Interval between ticks. Defaults to 16ms.
	Interval time.Duration

	// LockOSThread pins the loop goroutine to one OS thread, for owner state
	// with thread affinity (GL contexts, CGO thread-local storage).
	LockOSThread bool

	// Frame runs after every drain. May be nil.
	Frame FrameFunc

	// Logger defaults to NewDefaultLogger().
	Logger Logger
}

// OwnerLoop binds a dedicated goroutine that owns the state touched by
// completion items. Every tick it drains its CompletionQueue and then calls
// Frame. It never blocks on the queue.
//
// The loop plays the role of a render loop: workers hand results back with
// Post (or by pushing to the queue directly) and the loop applies them.
type OwnerLoop struct {
	completions *CompletionQueue
	interval    time.Duration
	lockThread  bool
	frame       FrameFunc
	logger      Logger

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped      chan struct{}
	stopOnce     sync.Once
	closed       atomic.Bool
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	ticks atomic.Int64
}

type ownerLoopKeyType struct{}

var ownerLoopKey ownerLoopKeyType

// GetCurrentOwnerLoop returns the loop running ctx's frame or completion item.
func GetCurrentOwnerLoop(ctx context.Context) *OwnerLoop {
	if v := ctx.Value(ownerLoopKey); v != nil {
		return v.(*OwnerLoop)
	}
	return nil
}

// NewOwnerLoop creates and starts a loop draining completions.
func NewOwnerLoop(completions *CompletionQueue, cfg OwnerLoopConfig) *OwnerLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = 16 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = NewDefaultLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &OwnerLoop{
		completions:  completions,
		interval:     cfg.Interval,
		lockThread:   cfg.LockOSThread,
		frame:        cfg.Frame,
		logger:       cfg.Logger,
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		shutdownChan: make(chan struct{}),
	}

	// Start the dedicated owner loop
	go l.runLoop()

	return l
}

// Post schedules item to run on the owner goroutine at the next tick.
func (l *OwnerLoop) Post(item Task) {
	l.completions.Push(item)
}

// Completions returns the queue drained by this loop.
func (l *OwnerLoop) Completions() *CompletionQueue {
	return l.completions
}

// Ticks returns how many ticks have completed.
func (l *OwnerLoop) Ticks() int64 {
	return l.ticks.Load()
}

// Shutdown asks the loop to exit after its current tick and signals
// WaitShutdown callers. Unlike Stop it does not wait, so frames and
// completion items may call it.
func (l *OwnerLoop) Shutdown() {
	l.shutdownOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		close(l.shutdownChan)
	})
}

// IsClosed returns true once Shutdown or Stop has been called.
func (l *OwnerLoop) IsClosed() bool {
	return l.closed.Load()
}

// Stop shuts the loop down and waits for it to exit. Completions pushed
// before Stop are applied by a final drain. Calling Stop from the loop
// goroutine deadlocks; use Shutdown there.
func (l *OwnerLoop) Stop() {
	l.stopOnce.Do(func() {
		l.Shutdown()
		<-l.stopped
	})
}

// Done is closed when the loop goroutine has exited.
func (l *OwnerLoop) Done() <-chan struct{} {
	return l.stopped
}

// WaitShutdown blocks until Shutdown() is called on this loop.
//
// Returns error if context is cancelled or deadline exceeded.
func (l *OwnerLoop) WaitShutdown(ctx context.Context) error {
	select {
	case <-l.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop is the core of this loop, it occupies a dedicated goroutine
func (l *OwnerLoop) runLoop() {
	defer close(l.stopped)

	if l.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	// Items and frames never see the loop's cancellation.
	runCtx := context.WithValue(withOwner(context.Background()), ownerLoopKey, l)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			l.tick(runCtx, now.Sub(last))
			last = now
		case <-l.ctx.Done():
			// Apply whatever the workers already handed back.
			if _, err := l.completions.DrainAndRun(runCtx); err != nil {
				l.logger.Warn("final drain failed", F("queue", l.completions.Name()), F("error", err))
			}
			return
		}
	}
}

func (l *OwnerLoop) tick(ctx context.Context, dt time.Duration) {
	defer l.ticks.Add(1)

	if _, err := l.completions.DrainAndRun(ctx); err != nil {
		l.logger.Warn("drain failed", F("queue", l.completions.Name()), F("error", err))
	}
	if l.frame == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("frame panicked", F("panic", r), F("stack", string(debug.Stack())))
		}
	}()
	l.frame(ctx, dt)
}
