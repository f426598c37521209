package execcontroller_test

import (
	"context"
	"errors"
	"fmt"

	execcontroller "github.com/Swind/go-exec-controller"
)

// ExampleController_Fork demonstrates chaining segments with only one import.
func ExampleController_Fork() {
	ctrl := execcontroller.New()
	defer ctrl.Shutdown()

	done := make(chan struct{})

	ctrl.Fork().
		OnComplete(func(e *execcontroller.Execution) { close(done) }).
		Start(func(ctx context.Context) error {
			fmt.Println("segment 1")
			execcontroller.CurrentExecution(ctx).Continue(func(ctx context.Context) error {
				fmt.Println("segment 2")
				return nil
			})
			return nil
		})

	<-done

	// Output:
	// segment 1
	// segment 2
}

// ExampleOffloadResult demonstrates blocking work that produces a value and
// resumes on the home loop.
func ExampleOffloadResult() {
	ctrl := execcontroller.New()
	defer ctrl.Shutdown()

	done := make(chan struct{})

	ctrl.Fork().
		OnComplete(func(e *execcontroller.Execution) { close(done) }).
		Start(func(ctx context.Context) error {
			exec := execcontroller.CurrentExecution(ctx)
			execcontroller.OffloadResult(exec,
				func(ctx context.Context) (string, error) {
					// Blocking IO belongs here, on the pool.
					return "value from the pool", nil
				},
				func(ctx context.Context, value string, err error) error {
					fmt.Println(value)
					return err
				})
			return nil
		})

	<-done

	// Output:
	// value from the pool
}

// ExampleStarter_OnError demonstrates per-fork error handling.
func ExampleStarter_OnError() {
	ctrl := execcontroller.New()
	defer ctrl.Shutdown()

	done := make(chan struct{})

	ctrl.Fork().
		OnError(func(ctx context.Context, err error) {
			fmt.Println("handled:", err)
		}).
		OnComplete(func(e *execcontroller.Execution) { close(done) }).
		Start(func(ctx context.Context) error {
			return errors.New("segment failed")
		})

	<-done

	// Output:
	// handled: segment failed
}
