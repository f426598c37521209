// Package execcontroller provides an event-loop execution controller for Go.
//
// This library implements a threading model where asynchronous work is
// organized into executions: chains of short segments, each bound to one
// single-goroutine event loop for its whole life. Blocking work is handed to
// an elastic pool and the chain resumes on the same loop, so state owned by
// an execution never needs locks.
//
// # Quick Start
//
// Create a controller at application startup:
//
//	ctrl := execcontroller.New() // 2 x NumCPU event loops
//	defer ctrl.Shutdown()
//
// Fork an execution and chain segments on its home loop:
//
//	ctrl.Fork().Start(func(ctx context.Context) error {
//		// Runs on the execution's home event loop.
//		execcontroller.CurrentExecution(ctx).Continue(func(ctx context.Context) error {
//			// Runs next, on the same loop, never concurrently.
//			return nil
//		})
//		return nil
//	})
//
// # Key Concepts
//
// Controller: Owns a fixed pool of event loops and an elastic blocking pool.
// All executions are forked through it; Shutdown stops everything.
//
// Execution: One logical unit of asynchronous work. Its segments run one at
// a time on its home loop, in the order they were requested. Two executions
// on the same loop interleave between segments, never within one.
//
// Offload: Hands a blocking step to the pool, then resumes the chain on the
// home loop with the step's outcome. Nothing of the execution runs while the
// blocking step is in flight.
//
// Interceptors: Wrap every segment of every execution on a controller, in
// registration order, for tracing and other cross-cutting instrumentation.
//
// # Thread Affinity
//
// Every goroutine the controller creates carries its role in the context:
// compute (event loop) or blocking (pool worker). Accessors like
// IsComputeContext and CurrentEventLoop read the binding, and the pool's
// synchronous entry point refuses to run on a compute goroutine, so blocking
// a loop by accident fails loudly instead of silently stalling it.
//
// # Error Handling
//
// A segment reports failure by returning an error. The failure is routed to
// the fork's OnError handler (log-and-drop by default) and queued segments
// are abandoned; OnComplete still fires exactly once. Errors never cross the
// execution boundary.
//
// # Example
//
//	import (
//		"context"
//		"fmt"
//
//		execcontroller "github.com/Swind/go-exec-controller"
//	)
//
//	func main() {
//		ctrl := execcontroller.New()
//		defer ctrl.Shutdown()
//
//		done := make(chan struct{})
//		ctrl.Fork().
//			OnComplete(func(e *execcontroller.Execution) { close(done) }).
//			Start(func(ctx context.Context) error {
//				exec := execcontroller.CurrentExecution(ctx)
//				execcontroller.OffloadResult(exec,
//					func(ctx context.Context) (string, error) {
//						return fetchFromDisk() // blocking IO, off the loop
//					},
//					func(ctx context.Context, value string, err error) error {
//						fmt.Println("loaded:", value) // back on the home loop
//						return err
//					})
//				return nil
//			})
//		<-done
//	}
//
// For more details, see https://github.com/Swind/go-exec-controller
package execcontroller
