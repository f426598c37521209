package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventLoopGroup is the fixed reactor pool: N event loops created eagerly at
// controller construction. Forks without an explicit loop are assigned
// round-robin.
type EventLoopGroup struct {
	loops []*EventLoop
	next  atomic.Uint64
}

func newEventLoopGroup(ctrl *Controller, n int, pin bool) *EventLoopGroup {
	g := &EventLoopGroup{
		loops: make([]*EventLoop, n),
	}
	for i := 0; i < n; i++ {
		g.loops[i] = newEventLoop(ctrl, i, pin)
	}
	return g
}

// Next returns the next loop in round-robin order.
func (g *EventLoopGroup) Next() *EventLoop {
	n := g.next.Add(1)
	return g.loops[(n-1)%uint64(len(g.loops))]
}

// Loop returns the i-th loop.
func (g *EventLoopGroup) Loop(i int) *EventLoop {
	return g.loops[i]
}

// Loops returns all loops. The returned slice must not be mutated.
func (g *EventLoopGroup) Loops() []*EventLoop {
	return g.loops
}

// Size returns the number of loops.
func (g *EventLoopGroup) Size() int {
	return len(g.loops)
}

// WaitIdle blocks until every loop has drained the tasks queued before the
// call, or ctx is done.
func (g *EventLoopGroup) WaitIdle(ctx context.Context) error {
	for _, l := range g.loops {
		if err := l.WaitIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops all loops in parallel and waits for their goroutines.
func (g *EventLoopGroup) shutdown(grace time.Duration) {
	var wg sync.WaitGroup
	for _, l := range g.loops {
		wg.Add(1)
		go func(l *EventLoop) {
			defer wg.Done()
			l.shutdown(grace)
		}(l)
	}
	wg.Wait()
}
