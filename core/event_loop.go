package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopShutdown is returned when a task is submitted to an event loop that
// no longer accepts external work.
var ErrLoopShutdown = errors.New("event loop is shut down")

// EventLoop binds a dedicated goroutine that drains a priority task queue
// sequentially. It guarantees that all tasks submitted to it run on the same
// goroutine (thread affinity), one at a time, FIFO within a priority.
//
// Use cases:
// 1. Homes for executions started through Controller.Fork
// 2. Raw compute tasks that need serialized, affine execution
// 3. Timers that must fire on a known goroutine
//
// A task that never returns starves the loop; nothing detects that.
// Blocking work belongs on the BlockingPool.
type EventLoop struct {
	name  string
	index int
	ctrl  *Controller

	queue  *PriorityTaskQueue
	signal chan struct{}
	delay  *delayScheduler

	// Goroutine ID of the run loop, recorded at birth. InEventLoop compares
	// against it.
	gid atomic.Uint64

	// runCtx is the loop goroutine's bound context. Written once before the
	// constructor returns, read-only afterwards.
	runCtx context.Context

	// The execution currently delivering a segment on this loop.
	// Read and written only from the loop goroutine.
	current *Execution

	// Lifecycle control
	shuttingDown atomic.Bool
	grace        atomic.Int64 // drain window in nanoseconds, set at shutdown
	quit         chan struct{}
	stopped      chan struct{}
	once         sync.Once

	pin bool

	// Counters
	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
}

// newEventLoop creates and starts a loop. The run goroutine is live and bound
// before this returns to the caller.
func newEventLoop(ctrl *Controller, index int, pin bool) *EventLoop {
	l := &EventLoop{
		name:    fmt.Sprintf("%s-loop-%d", ctrl.name, index),
		index:   index,
		ctrl:    ctrl,
		queue:   NewPriorityTaskQueue(),
		signal:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		pin:     pin,
	}
	l.delay = newDelayScheduler(l.submitInternal)

	started := make(chan struct{})
	go l.run(started)
	<-started

	return l
}

// Name returns the loop name, e.g. "execctl-loop-0".
func (l *EventLoop) Name() string {
	return l.name
}

// Controller returns the controller that owns this loop.
func (l *EventLoop) Controller() *Controller {
	return l.ctrl
}

// InEventLoop reports whether the calling goroutine is this loop's goroutine.
func (l *EventLoop) InEventLoop() bool {
	return l.gid.Load() == currentGoroutineID()
}

// Submit queues a task for execution on this loop.
// Returns ErrLoopShutdown once the loop stops accepting external work.
func (l *EventLoop) Submit(task Task) error {
	return l.SubmitWithTraits(task, DefaultTaskTraits())
}

// SubmitWithTraits queues a task with explicit traits.
func (l *EventLoop) SubmitWithTraits(task Task, traits TaskTraits) error {
	if l.shuttingDown.Load() {
		l.rejected.Add(1)
		l.ctrl.rejectedHandler.HandleRejectedTask(l.name, "shutdown")
		l.ctrl.metrics.RecordTaskRejected(l.name, "shutdown")
		return ErrLoopShutdown
	}
	l.submitInternal(task, traits)
	return nil
}

// submitInternal bypasses the shutdown gate so executions already in flight
// can land their continuations during a graceful drain.
func (l *EventLoop) submitInternal(task Task, traits TaskTraits) {
	l.queue.Push(task, traits)
	l.submitted.Add(1)

	select {
	case l.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued.
		// The run loop drains the queue before sleeping again.
	}
}

// Schedule runs task once after delay. The returned Timer cancels it.
func (l *EventLoop) Schedule(task Task, delay time.Duration) *Timer {
	return l.ScheduleWithTraits(task, delay, DefaultTaskTraits())
}

// ScheduleWithTraits runs task once after delay with explicit traits.
func (l *EventLoop) ScheduleWithTraits(task Task, delay time.Duration, traits TaskTraits) *Timer {
	t := &Timer{}
	if l.shuttingDown.Load() {
		t.Stop()
		return t
	}
	l.delay.add(task, delay, traits, t)
	return t
}

// ScheduleRepeating runs task every interval until the returned Timer is
// stopped or the loop shuts down. The first run fires after one interval.
func (l *EventLoop) ScheduleRepeating(task Task, interval time.Duration) *Timer {
	return l.ScheduleRepeatingWithTraits(task, interval, DefaultTaskTraits())
}

// ScheduleRepeatingWithTraits is ScheduleRepeating with explicit traits.
func (l *EventLoop) ScheduleRepeatingWithTraits(task Task, interval time.Duration, traits TaskTraits) *Timer {
	t := &Timer{}
	if l.shuttingDown.Load() {
		t.Stop()
		return t
	}

	var repeating Task
	repeating = func(ctx context.Context) {
		if t.Stopped() || l.shuttingDown.Load() {
			return
		}
		task(ctx)
		// Reschedule after execution so runs never overlap
		if !t.Stopped() && !l.shuttingDown.Load() {
			l.delay.add(repeating, interval, traits, t)
		}
	}
	l.delay.add(repeating, interval, traits, t)
	return t
}

// WaitIdle blocks until all tasks queued before the call have completed.
// It posts a lowest-priority barrier task, so higher-priority work queued
// earlier is covered too. Tasks posted after WaitIdle are not waited for.
func (l *EventLoop) WaitIdle(ctx context.Context) error {
	if l.shuttingDown.Load() {
		return ErrLoopShutdown
	}

	done := make(chan struct{})
	l.submitInternal(func(context.Context) {
		close(done)
	}, TraitsBestEffort())

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts a barrier task that runs callback on the loop goroutine
// once all previously queued tasks have completed. Non-blocking WaitIdle.
func (l *EventLoop) FlushAsync(callback func()) {
	if l.shuttingDown.Load() {
		return
	}
	l.submitInternal(func(context.Context) {
		callback()
	}, TraitsBestEffort())
}

// QueuedTaskCount returns the number of tasks waiting in the queue.
func (l *EventLoop) QueuedTaskCount() int {
	return l.queue.Len()
}

// DelayedTaskCount returns the number of timers not yet due.
func (l *EventLoop) DelayedTaskCount() int {
	return l.delay.taskCount()
}

// Stats returns a snapshot of the loop's counters.
func (l *EventLoop) Stats() EventLoopStats {
	return EventLoopStats{
		Name:           l.name,
		QueuedTasks:    l.queue.Len(),
		DelayedTasks:   l.delay.taskCount(),
		SubmittedTotal: l.submitted.Load(),
		CompletedTotal: l.completed.Load(),
		RejectedTotal:  l.rejected.Load(),
	}
}

// shutdown stops the loop. Zero grace drops queued tasks after the running
// one finishes; a positive grace drains the queue until empty or deadline.
// Blocks until the run goroutine has exited. Safe to call more than once.
func (l *EventLoop) shutdown(grace time.Duration) {
	l.once.Do(func() {
		l.shuttingDown.Store(true)
		l.grace.Store(int64(grace))
		l.delay.stop()
		close(l.quit)
	})
	<-l.stopped
}

// run is the core of the loop, it occupies a dedicated goroutine
func (l *EventLoop) run(started chan<- struct{}) {
	defer close(l.stopped)

	if l.pin {
		pinLoopThread(l.index)
	}
	l.gid.Store(currentGoroutineID())

	// Bind (role, controller) once, before any task runs
	l.runCtx = withEventLoop(bindContext(l.ctrl.baseCtx, RoleCompute, l.ctrl), l)
	close(started)

	for {
		select {
		case <-l.quit:
			l.drainOnQuit(l.runCtx)
			return
		default:
		}

		if item, ok := l.queue.Pop(); ok {
			l.runTask(l.runCtx, item)
			continue
		}

		select {
		case <-l.signal:
		case <-l.quit:
			l.drainOnQuit(l.runCtx)
			return
		}
	}
}

// runTask executes one task with panic protection and metrics.
func (l *EventLoop) runTask(runCtx context.Context, item TaskItem) {
	start := time.Now()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				stack := make([]byte, 16*1024)
				n := runtime.Stack(stack, false)
				l.ctrl.panicHandler.HandlePanic(runCtx, l.name, -1, rec, stack[:n])
				l.ctrl.metrics.RecordTaskPanic(l.name, rec)
			}
		}()
		item.Task(runCtx)
	}()
	l.completed.Add(1)
	l.ctrl.metrics.RecordTaskDuration(l.name, item.Traits.Priority, time.Since(start))
}

// drainOnQuit applies the grace window after the quit signal.
func (l *EventLoop) drainOnQuit(runCtx context.Context) {
	grace := time.Duration(l.grace.Load())
	if grace <= 0 {
		// Drop queued tasks, release references
		l.queue.Clear()
		return
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		item, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.runTask(runCtx, item)
	}
	l.queue.Clear()
}

// currentGoroutineID parses the goroutine ID from the runtime stack header,
// "goroutine 123 [running]:".
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
