package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-exec-controller/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ControllerSnapshotProvider provides current controller stats snapshots.
type ControllerSnapshotProvider interface {
	Stats() core.ControllerStats
}

// SnapshotPoller periodically exports controller Stats() snapshots into
// Prometheus gauges: one series per event loop, per blocking pool, and per
// controller.
type SnapshotPoller struct {
	interval time.Duration

	controllersMu sync.RWMutex
	controllers   map[string]ControllerSnapshotProvider

	loopQueued    *prom.GaugeVec
	loopDelayed   *prom.GaugeVec
	loopSubmitted *prom.GaugeVec
	loopCompleted *prom.GaugeVec
	loopRejected  *prom.GaugeVec

	poolWorkers   *prom.GaugeVec
	poolIdle      *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolSubmitted *prom.GaugeVec
	poolRejected  *prom.GaugeVec

	ctrlRunning       *prom.GaugeVec
	ctrlForks         *prom.GaugeVec
	ctrlForksRejected *prom.GaugeVec

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

	loopQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "loop_queued",
		Help:      "Queued tasks per event loop.",
	}, []string{"loop"})
	loopDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "loop_delayed",
		Help:      "Delayed (timer) tasks per event loop.",
	}, []string{"loop"})
	loopSubmitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "loop_submitted_total",
		Help:      "Loop submitted task count snapshot.",
	}, []string{"loop"})
	loopCompleted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "loop_completed_total",
		Help:      "Loop completed task count snapshot.",
	}, []string{"loop"})
	loopRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "loop_rejected_total",
		Help:      "Loop rejected task count snapshot.",
	}, []string{"loop"})

	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "pool_workers",
		Help:      "Worker count per blocking pool.",
	}, []string{"pool"})
	poolIdle := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "pool_idle_workers",
		Help:      "Idle worker count per blocking pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "pool_active_workers",
		Help:      "Workers running a task per blocking pool.",
	}, []string{"pool"})
	poolSubmitted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "pool_submitted_total",
		Help:      "Pool submitted task count snapshot.",
	}, []string{"pool"})
	poolRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "pool_rejected_total",
		Help:      "Pool rejected task count snapshot.",
	}, []string{"pool"})

	ctrlRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "controller_running",
		Help:      "Controller running state (1=running, 0=otherwise).",
	}, []string{"controller"})
	ctrlForks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "controller_forks_total",
		Help:      "Controller fork count snapshot.",
	}, []string{"controller"})
	ctrlForksRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctl",
		Name:      "controller_forks_rejected_total",
		Help:      "Controller rejected fork count snapshot.",
	}, []string{"controller"})

	var err error
	if loopQueued, err = registerCollector(reg, loopQueued); err != nil {
		return nil, err
	}
	if loopDelayed, err = registerCollector(reg, loopDelayed); err != nil {
		return nil, err
	}
	if loopSubmitted, err = registerCollector(reg, loopSubmitted); err != nil {
		return nil, err
	}
	if loopCompleted, err = registerCollector(reg, loopCompleted); err != nil {
		return nil, err
	}
	if loopRejected, err = registerCollector(reg, loopRejected); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolIdle, err = registerCollector(reg, poolIdle); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolSubmitted, err = registerCollector(reg, poolSubmitted); err != nil {
		return nil, err
	}
	if poolRejected, err = registerCollector(reg, poolRejected); err != nil {
		return nil, err
	}
	if ctrlRunning, err = registerCollector(reg, ctrlRunning); err != nil {
		return nil, err
	}
	if ctrlForks, err = registerCollector(reg, ctrlForks); err != nil {
		return nil, err
	}
	if ctrlForksRejected, err = registerCollector(reg, ctrlForksRejected); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:          interval,
		controllers:       make(map[string]ControllerSnapshotProvider),
		loopQueued:        loopQueued,
		loopDelayed:       loopDelayed,
		loopSubmitted:     loopSubmitted,
		loopCompleted:     loopCompleted,
		loopRejected:      loopRejected,
		poolWorkers:       poolWorkers,
		poolIdle:          poolIdle,
		poolActive:        poolActive,
		poolSubmitted:     poolSubmitted,
		poolRejected:      poolRejected,
		ctrlRunning:       ctrlRunning,
		ctrlForks:         ctrlForks,
		ctrlForksRejected: ctrlForksRejected,
	}, nil
}

// AddController adds or replaces a controller snapshot provider by name.
func (p *SnapshotPoller) AddController(name string, provider ControllerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "controller")
	p.controllersMu.Lock()
	p.controllers[name] = provider
	p.controllersMu.Unlock()
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
	p.stateMu.Unlock()

	go p.loop(pollCtx)
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

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

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
	p.controllersMu.RLock()
	defer p.controllersMu.RUnlock()

	for name, provider := range p.controllers {
		stats := provider.Stats()

		if stats.State == core.StateRunning {
			p.ctrlRunning.WithLabelValues(name).Set(1)
		} else {
			p.ctrlRunning.WithLabelValues(name).Set(0)
		}
		p.ctrlForks.WithLabelValues(name).Set(float64(stats.ForksTotal))
		p.ctrlForksRejected.WithLabelValues(name).Set(float64(stats.ForksRejected))

		for _, loop := range stats.EventLoops {
			loopLabel := normalizeLabel(loop.Name, "loop")
			p.loopQueued.WithLabelValues(loopLabel).Set(float64(loop.QueuedTasks))
			p.loopDelayed.WithLabelValues(loopLabel).Set(float64(loop.DelayedTasks))
			p.loopSubmitted.WithLabelValues(loopLabel).Set(float64(loop.SubmittedTotal))
			p.loopCompleted.WithLabelValues(loopLabel).Set(float64(loop.CompletedTotal))
			p.loopRejected.WithLabelValues(loopLabel).Set(float64(loop.RejectedTotal))
		}

		pool := stats.BlockingPool
		poolLabel := normalizeLabel(pool.Name, "pool")
		p.poolWorkers.WithLabelValues(poolLabel).Set(float64(pool.Workers))
		p.poolIdle.WithLabelValues(poolLabel).Set(float64(pool.IdleWorkers))
		p.poolActive.WithLabelValues(poolLabel).Set(float64(pool.ActiveWorkers))
		p.poolSubmitted.WithLabelValues(poolLabel).Set(float64(pool.SubmittedTotal))
		p.poolRejected.WithLabelValues(poolLabel).Set(float64(pool.RejectedTotal))
	}
}
