package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-exec-controller/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type controllerStub struct {
	stats core.ControllerStats
}

func (s controllerStub) Stats() core.ControllerStats { return s.stats }

func TestSnapshotPoller_CollectsControllerStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddController("ctrl-a", controllerStub{stats: core.ControllerStats{
		Name:  "ctrl-a",
		State: core.StateRunning,
		EventLoops: []core.EventLoopStats{
			{Name: "ctrl-a-loop-0", QueuedTasks: 3, DelayedTasks: 1, SubmittedTotal: 10, CompletedTotal: 6, RejectedTotal: 2},
			{Name: "ctrl-a-loop-1", QueuedTasks: 0, DelayedTasks: 0, SubmittedTotal: 4, CompletedTotal: 4, RejectedTotal: 0},
		},
		BlockingPool: core.BlockingPoolStats{
			Name:           "ctrl-a-blocking",
			Workers:        8,
			IdleWorkers:    6,
			ActiveWorkers:  2,
			SubmittedTotal: 20,
			RejectedTotal:  1,
		},
		ForksTotal:    15,
		ForksRejected: 3,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.loopQueued.WithLabelValues("ctrl-a-loop-0"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("ctrl-a-blocking"))
		return queued == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.ctrlRunning.WithLabelValues("ctrl-a")); got != 1 {
		t.Fatalf("controller running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.ctrlForks.WithLabelValues("ctrl-a")); got != 15 {
		t.Fatalf("controller forks gauge = %v, want 15", got)
	}
	if got := testutil.ToFloat64(poller.ctrlForksRejected.WithLabelValues("ctrl-a")); got != 3 {
		t.Fatalf("controller rejected forks gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.loopCompleted.WithLabelValues("ctrl-a-loop-1")); got != 4 {
		t.Fatalf("loop completed gauge = %v, want 4", got)
	}
	if got := testutil.ToFloat64(poller.poolWorkers.WithLabelValues("ctrl-a-blocking")); got != 8 {
		t.Fatalf("pool workers gauge = %v, want 8", got)
	}
}

func TestSnapshotPoller_TerminatedControllerReadsZero(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddController("ctrl-b", controllerStub{stats: core.ControllerStats{
		Name:  "ctrl-b",
		State: core.StateTerminated,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	poller.Stop()

	if got := testutil.ToFloat64(poller.ctrlRunning.WithLabelValues("ctrl-b")); got != 0 {
		t.Fatalf("controller running gauge = %v, want 0", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
