package core

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	Name      string
	Workers   int
	Queued    int
	Active    int
	Completed int64
	Panicked  int64
	Rejected  int64
	Running   bool
}

// CompletionStats represents runtime observability state for a completion queue.
type CompletionStats struct {
	Name     string
	Pending  int
	Applied  int64
	Panicked int64
	Draining bool
}
