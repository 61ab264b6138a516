package core

import "sync/atomic"

// BusyTracker counts background operations whose completion has not been
// applied yet. It backs "loading" indicators and is safe from any goroutine.
type BusyTracker struct {
	pending atomic.Int64
}

// Enter marks one more operation as in flight.
func (b *BusyTracker) Enter() {
	b.pending.Add(1)
}

// Leave marks one operation as applied. Extra calls are clamped at zero.
func (b *BusyTracker) Leave() {
	for {
		n := b.pending.Load()
		if n <= 0 {
			return
		}
		if b.pending.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Busy reports whether any operation is still in flight.
func (b *BusyTracker) Busy() bool {
	return b.pending.Load() > 0
}

// Pending returns the number of operations in flight.
func (b *BusyTracker) Pending() int {
	return int(b.pending.Load())
}
