package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var errInterceptorSkipped = errors.New("interceptor chain did not run the segment")

// SegmentPanicError wraps a panic recovered from a segment or interceptor so
// it can be routed like any other segment failure.
type SegmentPanicError struct {
	Value any
	Stack []byte
}

func (e *SegmentPanicError) Error() string {
	return fmt.Sprintf("segment panic: %v", e.Value)
}

// workUnit is one queued step of an execution: either a compute segment or
// an offload pair (blocking work plus its compute resume).
type workUnit struct {
	compute Segment
	work    Segment
	resume  func(ctx context.Context, err error) error
}

// Execution is one logical unit of asynchronous work: a chain of segments
// bound to a single home event loop for its whole life.
//
// Invariant: no two segments of the same execution ever run concurrently,
// compute or blocking. Steps requested while a segment is running (Continue,
// Offload) are queued and dispatched one at a time, in request order, after
// the running segment returns. Different executions sharing a home loop
// interleave between segments in loop FIFO order.
type Execution struct {
	id   uuid.UUID
	ctrl *Controller
	loop *EventLoop

	registry       *Registry
	registryAction func(r *Registry)
	onError        func(ctx context.Context, err error)
	onStart        func(e *Execution)
	onComplete     func(e *Execution)

	// Snapshots taken at fork time; controller-level changes after that do
	// not affect this execution.
	interceptors []Interceptor
	initializers []Initializer

	// mu guards the step queue and the lifecycle flags.
	mu        sync.Mutex
	queue     []workUnit
	active    bool
	completed bool

	// Goroutine ID of the currently running segment, for the offload guard.
	segGid atomic.Uint64

	failed    atomic.Bool
	startTime time.Time
}

func newExecution(s *Starter) *Execution {
	return &Execution{
		id:             uuid.New(),
		ctrl:           s.ctrl,
		loop:           s.loop,
		registry:       NewRegistry(),
		registryAction: s.registryAction,
		onError:        s.onError,
		onStart:        s.onStart,
		onComplete:     s.onComplete,
		interceptors:   s.ctrl.interceptorSnapshot(),
		initializers:   s.ctrl.initializerSnapshot(),
	}
}

// ID returns the execution's unique identity.
func (e *Execution) ID() uuid.UUID {
	return e.id
}

// Controller returns the controller this execution belongs to.
func (e *Execution) Controller() *Controller {
	return e.ctrl
}

// EventLoop returns the execution's home loop.
func (e *Execution) EventLoop() *EventLoop {
	return e.loop
}

// Registry returns the execution's private registry.
func (e *Execution) Registry() *Registry {
	return e.registry
}

// Completed reports whether onComplete has fired (or is about to).
func (e *Execution) Completed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completed
}

// Failed reports whether any segment failure reached the error handler.
func (e *Execution) Failed() bool {
	return e.failed.Load()
}

func (e *Execution) String() string {
	return fmt.Sprintf("execution %s on %s", e.id, e.loop.Name())
}

// =============================================================================
// Continuation surface
// =============================================================================

// Continue schedules seg as the execution's next step on its home loop.
// Called from inside one of the execution's own segments, seg starts only
// after that segment returns; steps queue in request order. Called from any
// other goroutine it appends to the same queue. Panics if the execution has
// already completed.
func (e *Execution) Continue(seg Segment) {
	if seg == nil {
		panic("execution: nil segment")
	}
	e.enqueue(workUnit{compute: seg})
}

// Offload hands work to the controller's blocking pool, then runs resume on
// the home loop with work's outcome (nil on success). Both are bracketed by
// the interceptor chain: work as a blocking segment, resume as a compute
// segment. The pair occupies one step in the execution's queue, so nothing
// of this execution runs while work is on the pool.
//
// Offload may only be called from inside one of the execution's own
// segments; calling it from anywhere else panics. A work error does not
// reach the error handler, resume receives it and decides. If the pool is
// shutting down, resume receives ErrPoolShutdown.
func (e *Execution) Offload(work Segment, resume func(ctx context.Context, err error) error) {
	if work == nil || resume == nil {
		panic("execution: nil offload callback")
	}
	if !e.inOwnSegment() {
		panic("execution: Offload called outside the execution's own segment")
	}
	e.enqueue(workUnit{work: work, resume: resume})
}

// OffloadResult is Offload for blocking work that produces a value. The
// result is captured by closure; work always completes before resume starts,
// so the happens-before edge makes the captured variable safe to read.
func OffloadResult[T any](
	e *Execution,
	work func(ctx context.Context) (T, error),
	resume func(ctx context.Context, value T, err error) error,
) {
	var result T
	e.Offload(
		func(ctx context.Context) error {
			var err error
			result, err = work(ctx)
			return err
		},
		func(ctx context.Context, err error) error {
			return resume(ctx, result, err)
		},
	)
}

func (e *Execution) inOwnSegment() bool {
	gid := e.segGid.Load()
	return gid != 0 && gid == currentGoroutineID()
}

// =============================================================================
// Step queue
// =============================================================================

func (e *Execution) enqueue(u workUnit) {
	e.mu.Lock()
	if e.completed {
		e.mu.Unlock()
		panic("execution: continuation after completion")
	}
	e.queue = append(e.queue, u)
	if !e.active {
		head := e.queue[0]
		e.queue = e.queue[1:]
		e.active = true
		e.mu.Unlock()
		e.dispatch(head)
		return
	}
	e.mu.Unlock()
}

// unitDone retires the active step and dispatches the next one, or finishes
// the execution when none remain. Always runs on the home loop goroutine.
func (e *Execution) unitDone() {
	e.mu.Lock()
	e.active = false
	if len(e.queue) > 0 {
		head := e.queue[0]
		e.queue = e.queue[1:]
		e.active = true
		e.mu.Unlock()
		e.dispatch(head)
		return
	}
	e.completed = true
	e.mu.Unlock()
	e.finish()
}

// dropQueued abandons all queued steps. Called when a compute segment fails:
// the chain behind it is broken, only the error handler can schedule more.
func (e *Execution) dropQueued() {
	e.mu.Lock()
	e.queue = nil
	e.mu.Unlock()
}

func (e *Execution) dispatch(u workUnit) {
	if u.compute != nil {
		e.loop.submitInternal(e.computeTask(u.compute), TraitsUserBlocking())
		return
	}

	poolTask := func(poolCtx context.Context) {
		workErr := e.runIntercepted(withExecution(poolCtx, e), u.work, SegmentBlocking)
		e.loop.submitInternal(e.resumeTask(u.resume, workErr), TraitsUserBlocking())
	}
	if err := e.ctrl.blocking.SubmitWithTraits(poolTask, TraitsUserBlocking()); err != nil {
		// Pool refused; resume still runs and observes the refusal
		e.loop.submitInternal(e.resumeTask(u.resume, err), TraitsUserBlocking())
	}
}

func (e *Execution) computeTask(seg Segment) Task {
	return func(loopCtx context.Context) {
		e.runComputeUnit(loopCtx, seg)
	}
}

func (e *Execution) resumeTask(resume func(ctx context.Context, err error) error, workErr error) Task {
	return e.computeTask(func(c context.Context) error {
		return resume(c, workErr)
	})
}

// =============================================================================
// Segment delivery
// =============================================================================

// begin constructs the execution and runs its first segment. It runs on the
// home loop goroutine, either inline from Start or as a queued loop task.
func (e *Execution) begin(loopCtx context.Context, initial Segment) {
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	e.startTime = time.Now()

	// Bound to the loop from construction on, so a fork issued inside
	// construction or the first segment defers instead of running inline
	e.loop.current = e
	defer func() { e.loop.current = nil }()

	e.construct()
	e.runComputeUnit(loopCtx, initial)
}

// construct runs the registry action, the initializers, and onStart, in that
// order. A panic in any of them is a construction fault: scheduler state is
// suspect, so it is wrapped and re-raised instead of being routed to the
// execution's error handler.
func (e *Execution) construct() {
	defer func() {
		if rec := recover(); rec != nil {
			panic(fmt.Errorf("execution start: %v", rec))
		}
	}()

	if e.registryAction != nil {
		e.registryAction(e.registry)
	}
	for _, init := range e.initializers {
		init.Init(e)
	}
	if e.onStart != nil {
		e.onStart(e)
	}
}

// runComputeUnit delivers one compute segment on the home loop, routes its
// failure, and retires the step. The loop's current-execution slot stays
// held through the error and completion callbacks, so a same-loop fork made
// inside any of them defers instead of running inline.
func (e *Execution) runComputeUnit(loopCtx context.Context, seg Segment) {
	segCtx := withExecution(loopCtx, e)

	e.loop.current = e
	defer func() { e.loop.current = nil }()

	err := e.runIntercepted(segCtx, seg, SegmentCompute)
	if err != nil {
		e.failed.Store(true)
		e.dropQueued()
		e.routeError(segCtx, err)
	}
	e.unitDone()
}

// runIntercepted runs one segment under the interceptor chain. The first
// registered interceptor is outermost. The segment's own result is recorded
// before the chain unwinds; whatever the chain returns is discarded, so an
// interceptor cannot swallow a failure. A panic anywhere inside, segment or
// interceptor, becomes a SegmentPanicError.
func (e *Execution) runIntercepted(segCtx context.Context, seg Segment, kind SegmentKind) error {
	e.segGid.Store(currentGoroutineID())
	defer e.segGid.Store(0)

	start := time.Now()

	var segErr error
	invoked := false
	chain := func(c context.Context) error {
		invoked = true
		segErr = e.runProtected(c, seg)
		return segErr
	}
	for i := len(e.interceptors) - 1; i >= 0; i-- {
		ic := e.interceptors[i]
		next := chain
		chain = func(c context.Context) error {
			return ic.Intercept(c, kind, next)
		}
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				segErr = &SegmentPanicError{Value: rec, Stack: captureStack()}
			}
		}()
		_ = chain(segCtx)
	}()

	if !invoked && segErr == nil {
		segErr = errInterceptorSkipped
	}

	e.ctrl.metrics.RecordSegmentDuration(e.loop.name, kind, time.Since(start))
	return segErr
}

func (e *Execution) runProtected(ctx context.Context, seg Segment) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &SegmentPanicError{Value: rec, Stack: captureStack()}
		}
	}()
	return seg(ctx)
}

// routeError funnels a segment failure into the execution's error handler.
// Errors never propagate past the execution boundary; a panicking handler is
// logged and dropped.
func (e *Execution) routeError(ctx context.Context, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.ctrl.logger.Error("execution error handler panicked",
				F("execution", e.id.String()), F("panic", rec))
		}
	}()
	e.onError(ctx, err)
}

// finish fires onComplete exactly once and records the execution. Runs on
// the home loop goroutine.
func (e *Execution) finish() {
	duration := time.Since(e.startTime)
	failed := e.failed.Load()

	if e.onComplete != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.ctrl.logger.Error("execution completion callback panicked",
						F("execution", e.id.String()), F("panic", rec))
				}
			}()
			e.onComplete(e)
		}()
	}

	e.ctrl.metrics.RecordExecutionCompleted(e.loop.name, duration, failed)
	e.ctrl.recordExecution(e, duration, failed)
}

func captureStack() []byte {
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
