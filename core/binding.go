package core

import (
	"context"
)

// ThreadRole classifies a goroutine managed by a Controller.
type ThreadRole int

const (
	// RoleUnbound is the zero value: the goroutine is not managed by any
	// controller, or the context does not descend from a managed one.
	RoleUnbound ThreadRole = iota

	// RoleCompute marks event loop goroutines. Work here must not block.
	RoleCompute

	// RoleBlocking marks blocking pool goroutines. Blocking IO is expected.
	RoleBlocking
)

func (r ThreadRole) String() string {
	switch r {
	case RoleCompute:
		return "compute"
	case RoleBlocking:
		return "blocking"
	default:
		return "unbound"
	}
}

// =============================================================================
// Context Helper
// =============================================================================
//
// Every goroutine a controller creates binds (role, owning controller) into
// its base context exactly once, before it runs any task. There is no public
// mutator: the binding is immutable for the life of the goroutine and is
// dropped with its context chain, so reads need no locking.

type threadRoleKeyType struct{}
type controllerKeyType struct{}
type eventLoopKeyType struct{}
type executionKeyType struct{}

var (
	threadRoleKey threadRoleKeyType
	controllerKey controllerKeyType
	eventLoopKey  eventLoopKeyType
	executionKey  executionKeyType
)

func bindContext(ctx context.Context, role ThreadRole, c *Controller) context.Context {
	ctx = context.WithValue(ctx, threadRoleKey, role)
	return context.WithValue(ctx, controllerKey, c)
}

func withEventLoop(ctx context.Context, loop *EventLoop) context.Context {
	return context.WithValue(ctx, eventLoopKey, loop)
}

func withExecution(ctx context.Context, e *Execution) context.Context {
	return context.WithValue(ctx, executionKey, e)
}

// CurrentRole reports the role bound to the goroutine behind ctx.
// RoleUnbound means the context does not belong to a managed goroutine.
func CurrentRole(ctx context.Context) ThreadRole {
	if v := ctx.Value(threadRoleKey); v != nil {
		return v.(ThreadRole)
	}
	return RoleUnbound
}

// CurrentController returns the controller owning the goroutine behind ctx,
// or nil for unmanaged goroutines.
func CurrentController(ctx context.Context) *Controller {
	if v := ctx.Value(controllerKey); v != nil {
		return v.(*Controller)
	}
	return nil
}

// CurrentEventLoop returns the event loop driving ctx, or nil off-loop.
func CurrentEventLoop(ctx context.Context) *EventLoop {
	if v := ctx.Value(eventLoopKey); v != nil {
		return v.(*EventLoop)
	}
	return nil
}

// CurrentExecution returns the execution ctx belongs to, or nil when the
// running task was not started through the fork protocol.
func CurrentExecution(ctx context.Context) *Execution {
	if v := ctx.Value(executionKey); v != nil {
		return v.(*Execution)
	}
	return nil
}

// IsComputeContext reports whether ctx is bound to an event loop goroutine.
func IsComputeContext(ctx context.Context) bool {
	return CurrentRole(ctx) == RoleCompute
}

// IsBlockingContext reports whether ctx is bound to a blocking pool goroutine.
func IsBlockingContext(ctx context.Context) bool {
	return CurrentRole(ctx) == RoleBlocking
}
