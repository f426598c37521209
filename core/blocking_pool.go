package core

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolShutdown is returned when a task is submitted to a blocking
	// pool that is shutting down.
	ErrPoolShutdown = errors.New("blocking pool is shut down")

	// ErrBlockingFromCompute is returned when a compute goroutine tries to
	// wait synchronously on blocking work.
	ErrBlockingFromCompute = errors.New("synchronous blocking wait on a compute goroutine")
)

// BlockingPool is the elastic worker pool for blocking work. Submit hands the
// task to an idle worker when one is waiting, otherwise it spawns a new
// worker goroutine; there is no upper bound. Idle workers exit after the
// keep-alive window.
//
// Every worker goroutine binds (RoleBlocking, owning controller) into its
// context before running its first task.
type BlockingPool struct {
	name      string
	ctrl      *Controller
	keepAlive time.Duration

	// handoff is unbuffered: a send only succeeds when an idle worker is
	// already receiving, which is what makes the pool elastic.
	handoff chan TaskItem

	// mu serializes submits against the shutdown transition so no worker is
	// spawned after wg.Wait starts.
	mu           sync.RWMutex
	shuttingDown atomic.Bool
	quit         chan struct{}
	wg           sync.WaitGroup

	workerSeq atomic.Int64
	workers   atomic.Int64
	idle      atomic.Int64
	active    atomic.Int64
	submitted atomic.Uint64
	rejected  atomic.Uint64
}

func newBlockingPool(ctrl *Controller, keepAlive time.Duration) *BlockingPool {
	return &BlockingPool{
		name:      ctrl.name + "-blocking",
		ctrl:      ctrl,
		keepAlive: keepAlive,
		handoff:   make(chan TaskItem),
		quit:      make(chan struct{}),
	}
}

// Name returns the pool name, e.g. "execctl-blocking".
func (p *BlockingPool) Name() string {
	return p.name
}

// Submit queues a task for execution on some pool worker.
// Returns ErrPoolShutdown once the pool stops accepting work.
func (p *BlockingPool) Submit(task Task) error {
	return p.SubmitWithTraits(task, DefaultTaskTraits())
}

// SubmitWithTraits submits a task with explicit traits.
func (p *BlockingPool) SubmitWithTraits(task Task, traits TaskTraits) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		p.rejected.Add(1)
		p.ctrl.rejectedHandler.HandleRejectedTask(p.name, "shutdown")
		p.ctrl.metrics.RecordTaskRejected(p.name, "shutdown")
		return ErrPoolShutdown
	}

	item := TaskItem{Task: task, Traits: traits}

	// Fast path: an idle worker is blocked on the handoff channel
	select {
	case p.handoff <- item:
		p.submitted.Add(1)
		return nil
	default:
	}

	// No idle worker, spawn one with the task as its first unit of work
	p.wg.Add(1)
	p.workers.Add(1)
	id := int(p.workerSeq.Add(1)) - 1
	go p.workerLoop(id, item)

	p.submitted.Add(1)
	return nil
}

// SubmitWait runs task on the pool and blocks until it finishes or ctx is
// done. It refuses to run from a compute-bound context: parking an event
// loop goroutine on blocking work starves the loop. Executions should use
// Offload instead, which resumes on the home loop without parking it.
func (p *BlockingPool) SubmitWait(ctx context.Context, task Task) error {
	if IsComputeContext(ctx) {
		return ErrBlockingFromCompute
	}

	done := make(chan struct{})
	err := p.Submit(func(taskCtx context.Context) {
		defer close(done)
		task(taskCtx)
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WorkerCount returns the number of live workers.
func (p *BlockingPool) WorkerCount() int {
	return int(p.workers.Load())
}

// ActiveTaskCount returns the number of tasks currently executing.
func (p *BlockingPool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// Stats returns a snapshot of the pool's counters.
func (p *BlockingPool) Stats() BlockingPoolStats {
	return BlockingPoolStats{
		Name:           p.name,
		Workers:        int(p.workers.Load()),
		IdleWorkers:    int(p.idle.Load()),
		ActiveWorkers:  int(p.active.Load()),
		SubmittedTotal: p.submitted.Load(),
		RejectedTotal:  p.rejected.Load(),
	}
}

// shutdown stops accepting work, wakes idle workers, and waits for in-flight
// tasks to finish. Safe to call more than once.
func (p *BlockingPool) shutdown() {
	p.mu.Lock()
	if !p.shuttingDown.Swap(true) {
		close(p.quit)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// workerLoop runs first, then waits for handoffs until the keep-alive window
// expires or the pool shuts down.
func (p *BlockingPool) workerLoop(id int, first TaskItem) {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	// Bind once, before the first task
	runCtx := bindContext(p.ctrl.baseCtx, RoleBlocking, p.ctrl)

	p.runTask(runCtx, id, first)

	for {
		idleTimer := time.NewTimer(p.keepAlive)
		p.idle.Add(1)

		select {
		case item := <-p.handoff:
			p.idle.Add(-1)
			idleTimer.Stop()
			p.runTask(runCtx, id, item)

		case <-idleTimer.C:
			p.idle.Add(-1)
			return

		case <-p.quit:
			p.idle.Add(-1)
			idleTimer.Stop()
			return
		}
	}
}

// runTask executes one task with panic protection and metrics.
func (p *BlockingPool) runTask(runCtx context.Context, id int, item TaskItem) {
	p.active.Add(1)
	start := time.Now()
	func() {
		defer func() {
			p.active.Add(-1)
			if rec := recover(); rec != nil {
				stack := make([]byte, 16*1024)
				n := runtime.Stack(stack, false)
				p.ctrl.panicHandler.HandlePanic(runCtx, p.name, id, rec, stack[:n])
				p.ctrl.metrics.RecordTaskPanic(p.name, rec)
			}
		}()
		item.Task(runCtx)
	}()
	p.ctrl.metrics.RecordTaskDuration(p.name, item.Traits.Priority, time.Since(start))
}
