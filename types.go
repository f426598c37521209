package execcontroller

import (
	"context"

	"github.com/Swind/go-exec-controller/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the execcontroller package for most use cases.

// Controller owns the event loops and the blocking pool
type Controller = core.Controller

// ControllerConfig holds construction options for a Controller
type ControllerConfig = core.ControllerConfig

// ControllerState is the controller lifecycle state
type ControllerState = core.ControllerState

// Starter is the fluent builder returned by Controller.Fork
type Starter = core.Starter

// Execution is one chain of segments bound to a home event loop
type Execution = core.Execution

// Registry is an execution's private key-value store
type Registry = core.Registry

// EventLoop is a single-goroutine serial executor
type EventLoop = core.EventLoop

// EventLoopGroup is the fixed pool of event loops
type EventLoopGroup = core.EventLoopGroup

// BlockingPool is the elastic pool for blocking work
type BlockingPool = core.BlockingPool

// Timer is a handle for cancelling a scheduled task
type Timer = core.Timer

// Task is a raw unit of work posted to a loop or the pool (Closure)
type Task = core.Task

// Segment is one execution-bound unit of user logic
type Segment = core.Segment

// TaskTraits defines task attributes (priority, category)
type TaskTraits = core.TaskTraits

// TaskPriority defines the priority levels for tasks
type TaskPriority = core.TaskPriority

// SegmentKind tells interceptors whether a segment is compute or blocking
type SegmentKind = core.SegmentKind

// Interceptor wraps every segment of every execution
type Interceptor = core.Interceptor

// InterceptorFunc adapts a function to the Interceptor interface
type InterceptorFunc = core.InterceptorFunc

// Initializer runs once per execution before its first segment
type Initializer = core.Initializer

// InitializerFunc adapts a function to the Initializer interface
type InitializerFunc = core.InitializerFunc

// ThreadRole classifies a controller-managed goroutine
type ThreadRole = core.ThreadRole

// Logger is the structured logging interface
type Logger = core.Logger

// Field is a key-value pair for structured logging
type Field = core.Field

// ControllerStats is a snapshot of controller, loop, and pool counters
type ControllerStats = core.ControllerStats

// EventLoopStats is a snapshot of one event loop's counters
type EventLoopStats = core.EventLoopStats

// BlockingPoolStats is a snapshot of the blocking pool's counters
type BlockingPoolStats = core.BlockingPoolStats

// ExecutionRecord is one completed execution in the controller history
type ExecutionRecord = core.ExecutionRecord

// Priority constants
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Segment kind constants
const (
	SegmentCompute  SegmentKind = core.SegmentCompute
	SegmentBlocking SegmentKind = core.SegmentBlocking
)

// Thread role constants
const (
	RoleUnbound  ThreadRole = core.RoleUnbound
	RoleCompute  ThreadRole = core.RoleCompute
	RoleBlocking ThreadRole = core.RoleBlocking
)

// Controller state constants
const (
	StateCreated      ControllerState = core.StateCreated
	StateRunning      ControllerState = core.StateRunning
	StateShuttingDown ControllerState = core.StateShuttingDown
	StateTerminated   ControllerState = core.StateTerminated
)

// Sentinel errors
var (
	ErrControllerShutdown  = core.ErrControllerShutdown
	ErrLoopShutdown        = core.ErrLoopShutdown
	ErrPoolShutdown        = core.ErrPoolShutdown
	ErrBlockingFromCompute = core.ErrBlockingFromCompute
)

// Convenience functions for creating TaskTraits
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

// Context accessors for the thread binding
var (
	CurrentRole       = core.CurrentRole
	CurrentController = core.CurrentController
	CurrentEventLoop  = core.CurrentEventLoop
	CurrentExecution  = core.CurrentExecution
	IsComputeContext  = core.IsComputeContext
	IsBlockingContext = core.IsBlockingContext
)

// Logging helpers
var (
	F                = core.F
	NewDefaultLogger = core.NewDefaultLogger
	NewNoOpLogger    = core.NewNoOpLogger
)

// DefaultConfig returns a ControllerConfig populated with default values.
var DefaultConfig = core.DefaultControllerConfig

// New creates a controller with default configuration: 2 x NumCPU event
// loops, an elastic blocking pool, and zero-grace shutdown.
func New() *Controller {
	return core.NewController()
}

// NewWithConfig creates a controller from config. Zero fields fall back to
// defaults.
func NewWithConfig(config *ControllerConfig) *Controller {
	return core.NewControllerWithConfig(config)
}

// OffloadResult offloads blocking work that produces a value and resumes on
// the execution's home loop with the value and the work's error.
func OffloadResult[T any](
	e *Execution,
	work func(ctx context.Context) (T, error),
	resume func(ctx context.Context, value T, err error) error,
) {
	core.OffloadResult(e, work, resume)
}
