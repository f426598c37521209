package core

import (
	"context"
)

// SegmentKind tells an interceptor whether it is wrapping compute work on an
// event loop or blocking work offloaded to the pool.
type SegmentKind int

const (
	SegmentCompute SegmentKind = iota
	SegmentBlocking
)

func (k SegmentKind) String() string {
	if k == SegmentBlocking {
		return "blocking"
	}
	return "compute"
}

// Interceptor wraps every segment of every execution on its controller, both
// compute and blocking. Implementations must call next exactly once and may
// pass a derived context. The first registered interceptor is outermost, so
// for interceptors [A, B] a segment observes enter A, enter B, segment,
// exit B, exit A.
//
// The error an interceptor returns is for instrumentation chains only: the
// execution records the segment's own result before the chain unwinds, so an
// interceptor cannot swallow a failure. An interceptor panic is treated as
// the segment's failure.
type Interceptor interface {
	Intercept(ctx context.Context, kind SegmentKind, next func(context.Context) error) error
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(ctx context.Context, kind SegmentKind, next func(context.Context) error) error

func (f InterceptorFunc) Intercept(ctx context.Context, kind SegmentKind, next func(context.Context) error) error {
	return f(ctx, kind, next)
}

// Initializer runs once per execution, before its first segment, in
// registration order. Initializers typically seed the execution registry.
type Initializer interface {
	Init(e *Execution)
}

// InitializerFunc adapts a function to the Initializer interface.
type InitializerFunc func(e *Execution)

func (f InitializerFunc) Init(e *Execution) {
	f(e)
}
