// Package tracing instruments executions with OpenTelemetry spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Swind/go-exec-controller/core"
)

const tracerName = "github.com/Swind/go-exec-controller/observability/tracing"

// Interceptor wraps every execution segment in a span. Register it on a
// controller; each compute or blocking segment then produces one span, and
// segments of the same execution nest under whatever parent span is in the
// segment's context.
type Interceptor struct {
	tracer trace.Tracer
}

var _ core.Interceptor = (*Interceptor)(nil)

// NewInterceptor creates a tracing interceptor backed by tp.
// A nil provider falls back to the global one.
func NewInterceptor(tp trace.TracerProvider) *Interceptor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Interceptor{tracer: tp.Tracer(tracerName)}
}

// Intercept starts a "segment.compute" or "segment.blocking" span, tags it
// with the execution identity and home loop, runs the segment under the span
// context, and records the segment's failure on the span before ending it.
func (i *Interceptor) Intercept(ctx context.Context, kind core.SegmentKind, next func(context.Context) error) error {
	spanCtx, span := i.tracer.Start(ctx, "segment."+kind.String())

	attrs := []attribute.KeyValue{
		attribute.String("segment.kind", kind.String()),
	}
	if e := core.CurrentExecution(ctx); e != nil {
		attrs = append(attrs,
			attribute.String("execution.id", e.ID().String()),
			attribute.String("execution.loop", e.EventLoop().Name()),
		)
	}
	span.SetAttributes(attrs...)

	err := next(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}
