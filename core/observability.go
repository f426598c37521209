package core

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord captures one completed execution.
type ExecutionRecord struct {
	ID        uuid.UUID
	LoopName  string
	StartedAt time.Time
	Duration  time.Duration
	Failed    bool
}

// EventLoopStats represents runtime observability state for one event loop.
type EventLoopStats struct {
	Name           string
	QueuedTasks    int
	DelayedTasks   int
	SubmittedTotal uint64
	CompletedTotal uint64
	RejectedTotal  uint64
}

// BlockingPoolStats represents runtime observability state for the blocking pool.
type BlockingPoolStats struct {
	Name           string
	Workers        int
	IdleWorkers    int
	ActiveWorkers  int
	SubmittedTotal uint64
	RejectedTotal  uint64
}

// ControllerStats aggregates the controller, loop, and pool snapshots.
type ControllerStats struct {
	Name          string
	State         ControllerState
	EventLoops    []EventLoopStats
	BlockingPool  BlockingPoolStats
	ForksTotal    uint64
	ForksRejected uint64
}
