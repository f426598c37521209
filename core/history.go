package core

import (
	"sync"
)

const defaultHistoryCapacity = 128

// executionHistory is a fixed-capacity ring of completed execution records.
type executionHistory struct {
	mu    sync.Mutex
	items []ExecutionRecord
	head  int
	count int
}

// newExecutionHistory sizes the ring. Zero capacity uses the default;
// negative capacity disables recording entirely.
func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 0 {
		return &executionHistory{}
	}
	if capacity == 0 {
		capacity = defaultHistoryCapacity
	}
	return &executionHistory{items: make([]ExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

func (h *executionHistory) Recent(limit int) []ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]ExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (ExecutionRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return ExecutionRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
