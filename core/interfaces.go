package core

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a raw task panics outside any execution.
// Segment panics never reach it; those are converted to errors and routed to
// the execution's error handler.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - name: The name of the event loop or pool where the panic occurred
	// - workerID: The ID of the worker (blocking pool workers; -1 for event loops)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, name string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, name string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, name, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Loop %s] Panic: %v\nStack trace:\n%s",
			name, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduling metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance; they may be called from event loop goroutines.
type Metrics interface {
	// RecordTaskDuration records how long a raw task took to execute.
	//
	// Parameters:
	// - name: The name of the event loop or pool
	// - priority: The task priority
	// - duration: How long the task took to execute
	RecordTaskDuration(name string, priority TaskPriority, duration time.Duration)

	// RecordSegmentDuration records how long one execution segment took,
	// split by segment kind (compute vs blocking).
	RecordSegmentDuration(name string, kind SegmentKind, duration time.Duration)

	// RecordExecutionCompleted records that an execution finished, how long
	// it lived from start to completion, and whether it failed.
	RecordExecutionCompleted(name string, duration time.Duration, failed bool)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(name string, panicInfo any)

	// RecordQueueDepth records the current queue depth.
	// This can be called periodically to track queue growth/shrinkage.
	RecordQueueDepth(name string, depth int)

	// RecordTaskRejected records that a task or fork was rejected
	// (e.g., during shutdown).
	RecordTaskRejected(name string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(name string, priority TaskPriority, duration time.Duration) {
}

func (m *NilMetrics) RecordSegmentDuration(name string, kind SegmentKind, duration time.Duration) {
}

func (m *NilMetrics) RecordExecutionCompleted(name string, duration time.Duration, failed bool) {
}

func (m *NilMetrics) RecordTaskPanic(name string, panicInfo any) {
}

func (m *NilMetrics) RecordQueueDepth(name string, depth int) {
}

func (m *NilMetrics) RecordTaskRejected(name string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task or fork is rejected. This happens
// when the controller, a loop, or the blocking pool is shutting down.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	//
	// Parameters:
	// - name: The name of the event loop or pool
	// - reason: Why the task was rejected (e.g., "shutdown")
	HandleRejectedTask(name string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(name string, reason string) {
	fmt.Printf("[%s] Task rejected: %s", name, reason)
}

// =============================================================================
// ControllerConfig: Configuration for Controller
// =============================================================================

// ControllerConfig holds configuration options for a Controller.
// All fields are optional; zero values are replaced by the defaults below.
type ControllerConfig struct {
	// Name prefixes loop and pool names in logs and metrics. Defaults to "execctl".
	Name string

	// NumEventLoops is the size of the reactor pool.
	// Defaults to 2 x runtime.NumCPU().
	NumEventLoops int

	// BaseContext is the root of every managed goroutine's context.
	// Values visible here are visible to all segments and tasks.
	// Defaults to context.Background().
	BaseContext context.Context

	// Logger receives controller diagnostics and is used by the default
	// execution error handler. Defaults to DefaultLogger.
	Logger Logger

	// PanicHandler is called when a raw task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records scheduling metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task or fork is rejected.
	// Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// ShutdownGrace bounds how long Shutdown lets loops drain queued tasks.
	// Zero (the default) drops queued tasks immediately; running tasks
	// always finish either way.
	ShutdownGrace time.Duration

	// BlockingKeepAlive is how long an idle blocking pool worker waits for
	// work before exiting. Defaults to 60s.
	BlockingKeepAlive time.Duration

	// HistoryCapacity bounds the completed-execution history ring.
	// Defaults to 128; negative disables history.
	HistoryCapacity int

	// PinLoops pins each event loop goroutine to an OS thread and, on Linux,
	// to a CPU (loop index modulo NumCPU). No-op on other platforms.
	PinLoops bool
}

// DefaultControllerConfig returns a config with default values.
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		Name:                "execctl",
		NumEventLoops:       2 * runtime.NumCPU(),
		BaseContext:         context.Background(),
		Logger:              NewDefaultLogger(),
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		BlockingKeepAlive:   60 * time.Second,
		HistoryCapacity:     128,
	}
}

func (c *ControllerConfig) withDefaults() *ControllerConfig {
	def := DefaultControllerConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.NumEventLoops <= 0 {
		out.NumEventLoops = def.NumEventLoops
	}
	if out.BaseContext == nil {
		out.BaseContext = def.BaseContext
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.PanicHandler == nil {
		out.PanicHandler = def.PanicHandler
	}
	if out.Metrics == nil {
		out.Metrics = def.Metrics
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = def.RejectedTaskHandler
	}
	if out.BlockingKeepAlive <= 0 {
		out.BlockingKeepAlive = def.BlockingKeepAlive
	}
	if out.HistoryCapacity == 0 {
		out.HistoryCapacity = def.HistoryCapacity
	}
	return &out
}
