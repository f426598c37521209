package core

import (
	"sync"

	"github.com/eapache/queue"
)

type TaskItem struct {
	Task   Task
	Traits TaskTraits
}

// TaskQueue defines the interface for different queue implementations
type TaskQueue interface {
	Push(t Task, traits TaskTraits)
	Pop() (TaskItem, bool)
	PopUpTo(max int) []TaskItem
	PeekTraits() (TaskTraits, bool)
	Len() int
	IsEmpty() bool
	Clear() // Clear all tasks from the queue
}

// =============================================================================
// FIFOTaskQueue: Plain FIFO queue on a ring buffer
// =============================================================================

// The ring (eapache/queue) grows and shrinks itself, so no explicit
// compaction pass is needed.
type FIFOTaskQueue struct {
	mu   sync.Mutex
	ring *queue.Queue
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{ring: queue.New()}
}

func (q *FIFOTaskQueue) Push(t Task, traits TaskTraits) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring.Add(TaskItem{Task: t, Traits: traits})
}

func (q *FIFOTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Length() == 0 {
		return TaskItem{}, false
	}
	return q.ring.Remove().(TaskItem), true
}

func (q *FIFOTaskQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.ring.Length()
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}

	batch := make([]TaskItem, n)
	for i := 0; i < n; i++ {
		batch[i] = q.ring.Remove().(TaskItem)
	}
	return batch
}

func (q *FIFOTaskQueue) PeekTraits() (TaskTraits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Length() == 0 {
		return TaskTraits{}, false
	}
	return q.ring.Peek().(TaskItem).Traits, true
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.Length()
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks from the queue and releases references
func (q *FIFOTaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring = queue.New()
}

// =============================================================================
// PriorityTaskQueue: One ring per priority, strict priority order with
// Stability (FIFO for same priority)
// =============================================================================

type PriorityTaskQueue struct {
	mu    sync.Mutex
	rings [numTaskPriorities]*queue.Queue
	size  int
}

func NewPriorityTaskQueue() *PriorityTaskQueue {
	q := &PriorityTaskQueue{}
	for i := range q.rings {
		q.rings[i] = queue.New()
	}
	return q
}

func clampPriority(p TaskPriority) TaskPriority {
	if p < TaskPriorityBestEffort {
		return TaskPriorityBestEffort
	}
	if p >= numTaskPriorities {
		return numTaskPriorities - 1
	}
	return p
}

func (q *PriorityTaskQueue) Push(t Task, traits TaskTraits) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rings[clampPriority(traits.Priority)].Add(TaskItem{Task: t, Traits: traits})
	q.size++
}

// Pop returns the oldest task of the highest non-empty priority.
func (q *PriorityTaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *PriorityTaskQueue) popLocked() (TaskItem, bool) {
	for p := numTaskPriorities - 1; p >= 0; p-- {
		if q.rings[p].Length() > 0 {
			q.size--
			return q.rings[p].Remove().(TaskItem), true
		}
	}
	return TaskItem{}, false
}

func (q *PriorityTaskQueue) PopUpTo(max int) []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.size
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}

	batch := make([]TaskItem, 0, n)
	for len(batch) < n {
		item, ok := q.popLocked()
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

func (q *PriorityTaskQueue) PeekTraits() (TaskTraits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p := numTaskPriorities - 1; p >= 0; p-- {
		if q.rings[p].Length() > 0 {
			return q.rings[p].Peek().(TaskItem).Traits, true
		}
	}
	return TaskTraits{}, false
}

func (q *PriorityTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *PriorityTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all tasks from the queue and releases references
func (q *PriorityTaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.rings {
		q.rings[i] = queue.New()
	}
	q.size = 0
}
