//go:build linux

package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestCompletionIsolation_OSThread verifies apply callbacks never run on a worker
// Given: an owner goroutine locked to its OS thread and a 4-worker pool
// When: 32 background operations complete and the owner drains them
// Then: every Apply ran on the owner's thread id and no Run did
func TestCompletionIsolation_OSThread(t *testing.T) {
	// Arrange
	pool := NewWorkerPool("bg", 4, quietConfig())
	defer pool.Shutdown()
	completions := NewCompletionQueue("owner", quietConfig())

	const ops = 32
	type result struct {
		owner      int
		applyTIDs  []int
		workerTIDs []int32
	}
	var workerTIDs [ops]atomic.Int32
	out := make(chan result, 1)

	// Act
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		res := result{owner: unix.Gettid()}
		for i := 0; i < ops; i++ {
			err := PostBackgroundOperation(pool, completions, BackgroundOperation[int]{
				Run: func(ctx context.Context) (int, error) {
					workerTIDs[i].Store(int32(unix.Gettid()))
					return i, nil
				},
				Apply: func(ctx context.Context, _ int) {
					res.applyTIDs = append(res.applyTIDs, unix.Gettid())
				},
			})
			if err != nil {
				t.Errorf("post %d: %v", i, err)
			}
		}
		tickUntil(completions, 5*time.Second, func() bool { return len(res.applyTIDs) == ops })
		for i := range workerTIDs {
			res.workerTIDs = append(res.workerTIDs, workerTIDs[i].Load())
		}
		out <- res
	}()

	// Assert
	var res result
	select {
	case res = <-out:
	case <-time.After(10 * time.Second):
		t.Fatal("owner goroutine did not finish")
	}
	require.Len(t, res.applyTIDs, ops)
	for i, tid := range res.applyTIDs {
		assert.Equal(t, res.owner, tid, "apply %d ran off the owner thread", i)
	}
	for i, tid := range res.workerTIDs {
		assert.NotEqual(t, int32(res.owner), tid, "run %d ran on the owner thread", i)
	}
}

// TestOwnerLoop_LockOSThread verifies frames and completions share one thread
// Given: an owner loop with LockOSThread enabled
// When: a worker posts a completion
// Then: the completion runs on the same OS thread as the frames
func TestOwnerLoop_LockOSThread(t *testing.T) {
	var frameTID, applyTID atomic.Int32
	loop := NewOwnerLoop(NewCompletionQueue("owner", quietConfig()), OwnerLoopConfig{
		Interval:     time.Millisecond,
		LockOSThread: true,
		Frame: func(ctx context.Context, dt time.Duration) {
			frameTID.Store(int32(unix.Gettid()))
		},
		Logger: NewNoOpLogger(),
	})
	defer loop.Stop()
	pool := NewWorkerPool("bg", 2, quietConfig())
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(func(ctx context.Context) {
		loop.Post(func(ctx context.Context) {
			applyTID.Store(int32(unix.Gettid()))
		})
	}))

	require.Eventually(t, func() bool {
		return applyTID.Load() != 0 && frameTID.Load() != 0
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, frameTID.Load(), applyTID.Load())
}
