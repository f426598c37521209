package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrControllerShutdown is returned by Shutdown when the controller has
// already been shut down.
var ErrControllerShutdown = errors.New("controller is shut down")

// ControllerState is the controller lifecycle:
// Created -> Running -> ShuttingDown -> Terminated. No transition goes back.
type ControllerState int32

const (
	StateCreated ControllerState = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s ControllerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Controller owns a fixed pool of event loops and an elastic blocking pool
// for its whole life. Executions forked through it are each bound to one
// home loop; blocking steps offload to the pool and resume on the same loop.
//
// Construction starts every loop goroutine immediately, so StateCreated is
// only observable inside the constructor; callers see StateRunning.
type Controller struct {
	name    string
	baseCtx context.Context

	logger          Logger
	metrics         Metrics
	panicHandler    PanicHandler
	rejectedHandler RejectedTaskHandler

	loops    *EventLoopGroup
	blocking *BlockingPool

	// Snapshot-swapped slices; executions copy them at fork time.
	interceptors atomic.Value // []Interceptor
	initializers atomic.Value // []Initializer

	state         atomic.Int32
	shutdownGrace time.Duration

	history       *executionHistory
	forksTotal    atomic.Uint64
	forksRejected atomic.Uint64
}

// NewController creates a controller with default configuration:
// 2 x NumCPU event loops, zero-grace shutdown, 60s blocking keep-alive.
func NewController() *Controller {
	return NewControllerWithConfig(nil)
}

// NewControllerWithConfig creates a controller from config. A nil config or
// zero fields fall back to DefaultControllerConfig values.
func NewControllerWithConfig(config *ControllerConfig) *Controller {
	cfg := config.withDefaults()

	c := &Controller{
		name:            cfg.Name,
		baseCtx:         cfg.BaseContext,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		panicHandler:    cfg.PanicHandler,
		rejectedHandler: cfg.RejectedTaskHandler,
		shutdownGrace:   cfg.ShutdownGrace,
		history:         newExecutionHistory(cfg.HistoryCapacity),
	}
	c.interceptors.Store([]Interceptor(nil))
	c.initializers.Store([]Initializer(nil))

	c.state.Store(int32(StateCreated))
	c.blocking = newBlockingPool(c, cfg.BlockingKeepAlive)
	c.loops = newEventLoopGroup(c, cfg.NumEventLoops, cfg.PinLoops)
	c.state.Store(int32(StateRunning))

	c.logger.Debug("controller started",
		F("name", c.name), F("eventLoops", cfg.NumEventLoops))
	return c
}

// Name returns the controller name.
func (c *Controller) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

// Fork returns a new Starter for one execution. Safe to call from any
// goroutine, including from inside a running segment.
func (c *Controller) Fork() *Starter {
	c.forksTotal.Add(1)
	return newStarter(c)
}

// EventLoops returns the reactor pool for advanced use: raw task submission,
// timers, or pinning a fork to a chosen loop.
func (c *Controller) EventLoops() *EventLoopGroup {
	return c.loops
}

// BlockingPool returns the blocking pool for advanced use. Executions should
// prefer Offload, which resumes on the home loop.
func (c *Controller) BlockingPool() *BlockingPool {
	return c.blocking
}

// NumEventLoops returns the reactor pool size.
func (c *Controller) NumEventLoops() int {
	return c.loops.Size()
}

// =============================================================================
// Interceptors and Initializers
// =============================================================================

// SetInterceptors replaces the controller-wide interceptor chain. The slice
// is copied. Executions snapshot the chain at fork time; in-flight
// executions keep what they started with. Concurrent calls are
// last-writer-wins.
func (c *Controller) SetInterceptors(interceptors []Interceptor) {
	cp := make([]Interceptor, len(interceptors))
	copy(cp, interceptors)
	c.interceptors.Store(cp)
}

// AddInterceptor appends one interceptor to the chain.
func (c *Controller) AddInterceptor(ic Interceptor) {
	if ic == nil {
		return
	}
	cur := c.interceptorSnapshot()
	cp := make([]Interceptor, len(cur), len(cur)+1)
	copy(cp, cur)
	c.interceptors.Store(append(cp, ic))
}

// SetInitializers replaces the controller-wide initializer list. Same
// snapshot semantics as SetInterceptors.
func (c *Controller) SetInitializers(initializers []Initializer) {
	cp := make([]Initializer, len(initializers))
	copy(cp, initializers)
	c.initializers.Store(cp)
}

// AddInitializer appends one initializer to the list.
func (c *Controller) AddInitializer(init Initializer) {
	if init == nil {
		return
	}
	cur := c.initializerSnapshot()
	cp := make([]Initializer, len(cur), len(cur)+1)
	copy(cp, cur)
	c.initializers.Store(append(cp, init))
}

func (c *Controller) interceptorSnapshot() []Interceptor {
	v, _ := c.interceptors.Load().([]Interceptor)
	return v
}

func (c *Controller) initializerSnapshot() []Initializer {
	v, _ := c.initializers.Load().([]Initializer)
	return v
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops the controller: loops stop accepting external tasks and
// apply the configured grace window to queued work (zero grace drops it),
// the blocking pool stops accepting and waits for in-flight tasks, and all
// managed goroutines are joined before Shutdown returns. A segment that is
// already running always finishes; it is never interrupted.
//
// Shutdown is single-shot: the first call performs it, every further call
// returns ErrControllerShutdown.
func (c *Controller) Shutdown() error {
	return c.shutdown(c.shutdownGrace)
}

// ShutdownGraceful is Shutdown with an explicit drain window for queued loop
// tasks, overriding the configured grace.
func (c *Controller) ShutdownGraceful(grace time.Duration) error {
	return c.shutdown(grace)
}

func (c *Controller) shutdown(grace time.Duration) error {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		return ErrControllerShutdown
	}
	c.logger.Info("controller shutting down", F("name", c.name), F("grace", grace))

	c.loops.shutdown(grace)
	c.blocking.shutdown()

	c.state.Store(int32(StateTerminated))
	c.logger.Info("controller terminated", F("name", c.name))
	return nil
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of controller, loop, and pool counters.
func (c *Controller) Stats() ControllerStats {
	loopStats := make([]EventLoopStats, 0, c.loops.Size())
	for _, l := range c.loops.Loops() {
		loopStats = append(loopStats, l.Stats())
	}
	return ControllerStats{
		Name:          c.name,
		State:         c.State(),
		EventLoops:    loopStats,
		BlockingPool:  c.blocking.Stats(),
		ForksTotal:    c.forksTotal.Load(),
		ForksRejected: c.forksRejected.Load(),
	}
}

// RecentExecutions returns up to limit completed executions, most recent
// first. limit <= 0 returns all retained records.
func (c *Controller) RecentExecutions(limit int) []ExecutionRecord {
	return c.history.Recent(limit)
}

func (c *Controller) recordExecution(e *Execution, duration time.Duration, failed bool) {
	c.history.Add(ExecutionRecord{
		ID:        e.id,
		LoopName:  e.loop.Name(),
		StartedAt: e.startTime,
		Duration:  duration,
		Failed:    failed,
	})
}

// logUncaught is the default execution error handler: log and drop.
func (c *Controller) logUncaught(ctx context.Context, err error) {
	fields := []Field{F("error", err)}
	if e := CurrentExecution(ctx); e != nil {
		fields = append(fields, F("execution", e.ID().String()), F("loop", e.EventLoop().Name()))
	}
	c.logger.Error("uncaught execution error", fields...)
}

func (c *Controller) accepting() bool {
	return c.State() == StateRunning
}

func (c *Controller) rejectFork(loop *EventLoop) {
	c.forksRejected.Add(1)
	c.logger.Warn("fork rejected", F("loop", loop.Name()), F("reason", "shutdown"))
	c.rejectedHandler.HandleRejectedTask(loop.Name(), "fork during shutdown")
	c.metrics.RecordTaskRejected(loop.Name(), "fork during shutdown")
}
