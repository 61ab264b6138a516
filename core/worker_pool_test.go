package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_DefaultWorkerCount(t *testing.T) {
	orig := numCPU
	numCPU = func() int { return 3 }
	defer func() { numCPU = orig }()

	pool := NewWorkerPool("default", 0, quietConfig())
	defer pool.Shutdown()

	assert.Equal(t, 3, pool.WorkerCount())
	assert.Equal(t, "default", pool.Name())
	assert.True(t, pool.IsRunning())
}

// TestWorkerPool_NoTaskLostOrDuplicated verifies exactly-once execution
// Given: a 4-worker pool and 8 goroutines submitting 250 tasks each
// When: Shutdown is called right after the last submission
// Then: every one of the 2000 tasks ran exactly once
func TestWorkerPool_NoTaskLostOrDuplicated(t *testing.T) {
	// Arrange
	const submitters, perSubmitter = 8, 250
	pool := NewWorkerPool("exactly-once", 4, quietConfig())
	var runs [submitters * perSubmitter]atomic.Int32

	// Act
	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				idx := s*perSubmitter + i
				if err := pool.Submit(func(ctx context.Context) { runs[idx].Add(1) }); err != nil {
					t.Errorf("submit %d: %v", idx, err)
				}
			}
		}()
	}
	wg.Wait()
	pool.Shutdown()

	// Assert
	for i := range runs {
		if got := runs[i].Load(); got != 1 {
			t.Fatalf("task %d ran %d times, want 1", i, got)
		}
	}
	stats := pool.Stats()
	assert.Equal(t, int64(submitters*perSubmitter), stats.Completed)
	assert.Equal(t, 0, stats.Queued)
	assert.False(t, stats.Running)
}

// TestWorkerPool_FIFOWithSingleWorker verifies start order equals submit order
// Given: a pool with exactly one worker
// When: 50 tasks are submitted
// Then: they execute in submission order
func TestWorkerPool_FIFOWithSingleWorker(t *testing.T) {
	// Arrange
	pool := NewWorkerPool("fifo", 1, quietConfig())
	var mu sync.Mutex
	var order []int

	// Act
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	pool.Shutdown()

	// Assert
	require.Len(t, order, 50)
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

// TestWorkerPool_CleanShutdownWhenIdle verifies idle workers exit promptly
// Given: a started pool with nothing queued
// When: Shutdown is called
// Then: it returns within a bounded time
func TestWorkerPool_CleanShutdownWhenIdle(t *testing.T) {
	pool := NewWorkerPool("idle", 8, quietConfig())

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown of idle pool did not return")
	}
	select {
	case <-pool.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
}

// TestWorkerPool_ShutdownDrainsQueue verifies queued work survives shutdown
// Given: a single worker blocked on a task and 10 more tasks queued behind it
// When: Shutdown is called and the worker is then released
// Then: all 11 tasks ran before Shutdown returned
func TestWorkerPool_ShutdownDrainsQueue(t *testing.T) {
	// Arrange
	pool := NewWorkerPool("drain", 1, quietConfig())
	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32

	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-release
		ran.Add(1)
	}))
	<-started
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) { ran.Add(1) }))
	}

	// Act
	shutdownDone := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(shutdownDone)
	}()
	require.Eventually(t, func() bool { return !pool.IsRunning() }, time.Second, time.Millisecond)
	close(release)

	// Assert
	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, int32(11), ran.Load())
}

// TestWorkerPool_SubmitAfterShutdownRejected verifies the late-submission policy
// Given: a pool that has been shut down
// When: a task is submitted
// Then: ErrPoolShutdown is returned, the task never runs and the rejection is reported
func TestWorkerPool_SubmitAfterShutdownRejected(t *testing.T) {
	// Arrange
	metrics := &recordingMetrics{}
	rejected := &recordingRejectedHandler{}
	pool := NewWorkerPool("late", 2, &Config{
		Logger:              NewNoOpLogger(),
		Metrics:             metrics,
		RejectedTaskHandler: rejected,
	})
	pool.Shutdown()

	// Act
	var ran atomic.Bool
	err := pool.Submit(func(ctx context.Context) { ran.Store(true) })

	// Assert
	assert.ErrorIs(t, err, ErrPoolShutdown)
	assert.ErrorIs(t, err, ErrQueueClosed)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, int64(1), pool.Stats().Rejected)
	assert.Equal(t, []string{"shutting down"}, rejected.reasons)
	assert.Equal(t, []string{"shutting down"}, metrics.rejected)
}

// TestWorkerPool_PanicKeepsWorkerAlive verifies the execution boundary
// Given: a single-worker pool
// When: a panicking task is followed by a normal task
// Then: the panic is reported and the second task still runs on the same pool
func TestWorkerPool_PanicKeepsWorkerAlive(t *testing.T) {
	// Arrange
	handler := &recordingPanicHandler{}
	metrics := &recordingMetrics{}
	pool := NewWorkerPool("panics", 1, &Config{
		Logger:       NewNoOpLogger(),
		PanicHandler: handler,
		Metrics:      metrics,
	})
	var ran atomic.Bool

	// Act
	require.NoError(t, pool.Submit(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) { ran.Store(true) }))
	pool.Shutdown()

	// Assert
	assert.True(t, ran.Load())
	panics := handler.snapshot()
	require.Len(t, panics, 1)
	assert.Equal(t, "panics", panics[0].name)
	assert.Equal(t, 0, panics[0].workerID)
	assert.Equal(t, "boom", panics[0].value)
	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Panicked)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, 1, metrics.panics)
	assert.Equal(t, 2, metrics.durations)
}

// TestWorkerPool_SubmitFromWorker verifies workers may submit work themselves
// Given: a running pool
// When: a task submits a follow-up task
// Then: the follow-up runs and sees the pool in its context
func TestWorkerPool_SubmitFromWorker(t *testing.T) {
	pool := NewWorkerPool("nested", 2, quietConfig())
	defer pool.Shutdown()

	done := make(chan *WorkerPool, 1)
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		err := GetCurrentPool(ctx).Submit(func(ctx context.Context) {
			done <- GetCurrentPool(ctx)
		})
		if err != nil {
			t.Errorf("nested submit: %v", err)
		}
	}))

	select {
	case got := <-done:
		assert.Same(t, pool, got)
	case <-time.After(time.Second):
		t.Fatal("nested task did not run")
	}
}

func TestWorkerPool_ContextValues(t *testing.T) {
	pool := NewWorkerPool("ctx", 3, quietConfig())
	ids := make(chan int, 1)
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		ids <- GetWorkerID(ctx)
	}))
	pool.Shutdown()

	id := <-ids
	assert.GreaterOrEqual(t, id, 0)
	assert.Less(t, id, 3)
	assert.Equal(t, -1, GetWorkerID(context.Background()))
	assert.Nil(t, GetCurrentPool(context.Background()))
}

// TestWorkerPool_ShutdownContextTimeout verifies the bounded wait
// Given: a worker stuck in a task
// When: ShutdownContext is called with a 50ms deadline
// Then: it returns DeadlineExceeded, and the pool still finishes once released
func TestWorkerPool_ShutdownContextTimeout(t *testing.T) {
	// Arrange
	pool := NewWorkerPool("bounded", 1, quietConfig())
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := pool.ShutdownContext(ctx)

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
	select {
	case <-pool.Done():
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after release")
	}
	assert.NoError(t, pool.ShutdownContext(context.Background()))
}

func TestWorkerPool_ShutdownConcurrentCallers(t *testing.T) {
	pool := NewWorkerPool("twice", 2, quietConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Shutdown()
		}()
	}
	wg.Wait()

	assert.False(t, pool.IsRunning())
}

func TestWorkerPool_ActiveTaskCount(t *testing.T) {
	pool := NewWorkerPool("active", 2, quietConfig())
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) { <-release }))
	}

	require.Eventually(t, func() bool {
		return pool.ActiveTaskCount() == 2 && pool.QueuedTaskCount() == 1
	}, time.Second, time.Millisecond)

	close(release)
	pool.Shutdown()
	assert.Equal(t, 0, pool.ActiveTaskCount())
}
