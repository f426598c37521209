package core

import (
	"context"
)

// Task is the unit of work a thread pool runs (Closure)
type Task func(ctx context.Context)

// Segment is one unit of execution-bound user logic. A segment runs on its
// execution's home event loop (or on the blocking pool for offloaded work),
// one at a time, and reports failure through its error return.
type Segment func(ctx context.Context) error

// =============================================================================
// TaskTraits: Define task attributes (priority, blocking behavior, etc.)
// =============================================================================

type TaskPriority int

const (
	// TaskPriorityBestEffort: Lowest priority
	TaskPriorityBestEffort TaskPriority = iota

	// TaskPriorityUserVisible: Default priority
	TaskPriorityUserVisible

	// TaskPriorityUserBlocking: Highest priority
	// `UserBlocking` means someone is waiting on the result right now.
	// Execution segments are submitted at this priority so continuations
	// are not starved by background maintenance tasks.
	TaskPriorityUserBlocking

	numTaskPriorities
)

type TaskTraits struct {
	Priority TaskPriority
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}
