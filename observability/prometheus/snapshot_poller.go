package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-async-loader/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// CompletionSnapshotProvider provides current completion queue snapshots.
type CompletionSnapshotProvider interface {
	Stats() core.CompletionStats
}

// BusySnapshotProvider reports outstanding background operations.
type BusySnapshotProvider interface {
	Pending() int
}

// SnapshotPoller periodically exports pool, completion queue and busy
// tracker snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	mu          sync.RWMutex
	pools       map[string]PoolSnapshotProvider
	completions map[string]CompletionSnapshotProvider
	busy        map[string]BusySnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolRunning   *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolPanicked  *prom.GaugeVec
	poolRejected  *prom.GaugeVec

	completionPending *prom.GaugeVec
	completionApplied *prom.GaugeVec

	busyPending *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help, label string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "asyncloader",
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	p := &SnapshotPoller{
		interval:          interval,
		pools:             make(map[string]PoolSnapshotProvider),
		completions:       make(map[string]CompletionSnapshotProvider),
		busy:              make(map[string]BusySnapshotProvider),
		poolQueued:        gauge("pool_queued", "Queued tasks per pool.", "pool"),
		poolActive:        gauge("pool_active", "Active tasks per pool.", "pool"),
		poolWorkers:       gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning:       gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
		poolCompleted:     gauge("pool_completed", "Pool completed task count snapshot.", "pool"),
		poolPanicked:      gauge("pool_panicked", "Pool panicked task count snapshot.", "pool"),
		poolRejected:      gauge("pool_rejected", "Pool rejected task count snapshot.", "pool"),
		completionPending: gauge("completion_pending", "Completion items waiting for the owner.", "queue"),
		completionApplied: gauge("completion_applied", "Completion items applied snapshot.", "queue"),
		busyPending:       gauge("busy_pending", "Outstanding background operations.", "tracker"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolRunning,
		&p.poolCompleted, &p.poolPanicked, &p.poolRejected,
		&p.completionPending, &p.completionApplied, &p.busyPending,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.mu.Lock()
	p.pools[name] = provider
	p.mu.Unlock()
}

// AddCompletionQueue adds or replaces a completion queue provider by name.
func (p *SnapshotPoller) AddCompletionQueue(name string, provider CompletionSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.mu.Lock()
	p.completions[name] = provider
	p.mu.Unlock()
}

// AddBusyTracker adds or replaces a busy tracker by name.
func (p *SnapshotPoller) AddBusyTracker(name string, provider BusySnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "tracker")
	p.mu.Lock()
	p.busy[name] = provider
	p.mu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolPanicked.WithLabelValues(name).Set(float64(stats.Panicked))
		p.poolRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.completions {
		stats := provider.Stats()
		p.completionPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.completionApplied.WithLabelValues(name).Set(float64(stats.Applied))
	}

	for name, provider := range p.busy {
		p.busyPending.WithLabelValues(name).Set(float64(provider.Pending()))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
