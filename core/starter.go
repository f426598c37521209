package core

import (
	"context"
	"sync/atomic"
)

// Starter collects the configuration for one forked execution. Obtained from
// Controller.Fork, committed by Start. The fluent setters may be called in
// any order, any number of times; the last call per field wins and none of
// them has side effects beyond recording the value.
//
// A Starter is single-use: Start consumes it and panics on reuse.
type Starter struct {
	ctrl *Controller
	loop *EventLoop

	onError        func(ctx context.Context, err error)
	onStart        func(e *Execution)
	onComplete     func(e *Execution)
	registryAction func(r *Registry)

	consumed atomic.Bool
}

// newStarter picks the round-robin default loop at fork time and installs
// the controller's log-and-drop error handler.
func newStarter(c *Controller) *Starter {
	return &Starter{
		ctrl:    c,
		loop:    c.loops.Next(),
		onError: c.logUncaught,
	}
}

// EventLoop pins the execution to a specific home loop instead of the
// round-robin default. A nil loop keeps the current choice.
func (s *Starter) EventLoop(loop *EventLoop) *Starter {
	if loop != nil {
		s.loop = loop
	}
	return s
}

// OnError replaces the default log-and-drop handler for segment failures.
func (s *Starter) OnError(handler func(ctx context.Context, err error)) *Starter {
	if handler != nil {
		s.onError = handler
	}
	return s
}

// OnStart sets a callback that fires once on the home loop, after the
// registry is populated and before the first segment.
func (s *Starter) OnStart(callback func(e *Execution)) *Starter {
	s.onStart = callback
	return s
}

// OnComplete sets a callback that fires exactly once on the home loop after
// the execution's last segment, whether it ended in success or error.
func (s *Starter) OnComplete(callback func(e *Execution)) *Starter {
	s.onComplete = callback
	return s
}

// Register sets an action that populates the execution's private registry
// before initializers and onStart run.
func (s *Starter) Register(action func(r *Registry)) *Starter {
	s.registryAction = action
	return s
}

// Start consumes the builder and schedules the execution with initial as its
// first segment.
//
// Dispatch: when the caller is already on the home loop's goroutine and no
// execution is currently bound there, construction and the first segment
// run synchronously on the caller's stack. In every other case, including a
// fork made from inside a running segment on the same loop, the execution
// is queued on the home loop and forks land in FIFO submission order.
//
// There is no return value; the outcome is observed only through the
// OnStart, OnError and OnComplete callbacks. Start panics on a nil segment
// and on reuse. Once the controller is shutting down the fork is dropped
// and counted as rejected.
func (s *Starter) Start(initial Segment) {
	if initial == nil {
		panic("starter: nil initial segment")
	}
	if s.consumed.Swap(true) {
		panic("starter: already consumed")
	}
	if !s.ctrl.accepting() {
		s.ctrl.rejectFork(s.loop)
		return
	}

	e := newExecution(s)

	if s.loop.InEventLoop() && s.loop.current == nil {
		e.begin(s.loop.runCtx, initial)
		return
	}

	s.loop.submitInternal(func(loopCtx context.Context) {
		e.begin(loopCtx, initial)
	}, TraitsUserBlocking())
}
