package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsImmediateAndRecurring(t *testing.T) {
	var runs int32
	s := New(Task{
		Name:      "count",
		Interval:  10 * time.Millisecond,
		Immediate: true,
		Fn:        func(ctx context.Context) { atomic.AddInt32(&runs, 1) },
	})
	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	if n := atomic.LoadInt32(&runs); n < 3 {
		t.Errorf("expected at least 3 runs, got %d", n)
	}
}

func TestSchedulerStopWaitsAndPreventsFurtherRuns(t *testing.T) {
	var runs, active int32
	s := New(Task{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Fn: func(ctx context.Context) {
			if atomic.AddInt32(&active, 1) > 1 {
				t.Error("runs of one task overlapped")
			}
			atomic.AddInt32(&runs, 1)
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		},
	})
	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&active) != 0 {
		t.Errorf("Stop returned while a run was active")
	}
	after := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	if n := atomic.LoadInt32(&runs); n != after {
		t.Errorf("task ran after Stop: %d -> %d", after, n)
	}
}

func TestSchedulerSkipsInvalidTasksAndRecovers(t *testing.T) {
	var ok int32
	s := New(
		Task{Name: "no-fn", Interval: time.Millisecond},
		Task{Name: "no-interval", Fn: func(context.Context) {}},
		Task{Name: "panics", Interval: 5 * time.Millisecond, Immediate: true, Fn: func(context.Context) { panic("boom") }},
		Task{Name: "fine", Interval: 5 * time.Millisecond, Immediate: true, Fn: func(context.Context) { atomic.StoreInt32(&ok, 1) }},
	)
	if len(s.tasks) != 2 {
		t.Fatalf("expected 2 valid tasks, got %d", len(s.tasks))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Stop()

	if atomic.LoadInt32(&ok) != 1 {
		t.Errorf("healthy task did not run")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	New().Stop()
}
