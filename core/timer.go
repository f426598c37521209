package core

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is the cancel handle for a delayed or repeating task.
type Timer struct {
	stopped atomic.Bool
}

// Stop cancels future firings. A task that has already been handed to the
// loop queue still runs; a repeating task stops rescheduling itself.
func (t *Timer) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	return t.stopped.Load()
}

// delayedTask represents a task scheduled for the future
type delayedTask struct {
	runAt  time.Time
	task   Task
	traits TaskTraits
	timer  *Timer
	index  int // for heap interface
}

// delayedTaskHeap implements heap.Interface
type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int           { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedTaskHeap) Peek() *delayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// delayScheduler holds an event loop's future tasks and feeds them back into
// the loop queue when they come due. One goroutine per loop.
type delayScheduler struct {
	mu     sync.Mutex
	pq     delayedTaskHeap
	wakeup chan struct{}
	quit   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// post hands a due task to the owning loop's queue.
	post func(Task, TaskTraits)
}

func newDelayScheduler(post func(Task, TaskTraits)) *delayScheduler {
	s := &delayScheduler{
		pq:     make(delayedTaskHeap, 0),
		wakeup: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		post:   post,
	}
	heap.Init(&s.pq)
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *delayScheduler) add(task Task, delay time.Duration, traits TaskTraits, timer *Timer) {
	s.mu.Lock()
	item := &delayedTask{
		runAt:  time.Now().Add(delay),
		task:   task,
		traits: traits,
		timer:  timer,
	}
	heap.Push(&s.pq, item)
	earliest := item.index == 0
	s.mu.Unlock()

	if earliest {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
}

func (s *delayScheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		wait, ok := s.nextWait()
		if !ok {
			// No tasks, wait until something is added
			wait = 1000 * time.Hour
		} else if wait < 0 {
			wait = 0
		}

		timer.Reset(wait)

		select {
		case <-s.quit:
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			s.processExpired()
		case <-s.wakeup:
			// New earliest task, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextWait reports how long to wait until the next task.
// ok is false when the heap is empty.
func (s *delayScheduler) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.pq.Peek()
	if item == nil {
		return 0, false
	}
	return time.Until(item.runAt), true
}

// processExpired posts all due tasks back to the loop, outside the lock.
func (s *delayScheduler) processExpired() {
	s.mu.Lock()

	now := time.Now()
	var expired []*delayedTask
	for s.pq.Len() > 0 {
		item := s.pq.Peek()
		if item.runAt.After(now) {
			break
		}
		heap.Pop(&s.pq)
		expired = append(expired, item)
	}

	s.mu.Unlock()

	for _, item := range expired {
		if item.timer != nil && item.timer.Stopped() {
			continue
		}
		s.post(item.task, item.traits)
	}
}

func (s *delayScheduler) stop() {
	s.once.Do(func() {
		close(s.quit)
	})
	s.wg.Wait()

	// Clear pq to release task references
	s.mu.Lock()
	s.pq = make(delayedTaskHeap, 0)
	heap.Init(&s.pq)
	s.mu.Unlock()
}

func (s *delayScheduler) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pq)
}
