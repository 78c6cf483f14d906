package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one recurring job. Fn runs once per Interval; when Immediate is
// set it also runs right after Start. Runs of one task never overlap.
type Task struct {
	Name      string
	Interval  time.Duration
	Immediate bool
	Fn        func(ctx context.Context)
}

// Scheduler runs a fixed set of tasks until Stop or the parent context ends.
type Scheduler struct {
	tasks []Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(tasks ...Task) *Scheduler {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Fn == nil || t.Interval <= 0 {
			log.Warn().Str("task", t.Name).Msg("invalid task skipped")
			continue
		}
		out = append(out, t)
	}
	return &Scheduler{tasks: out}
}

// Start launches every task. A second Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Stop cancels every task and waits until all of them returned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	if t.Immediate {
		s.run(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, t)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t Task) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", t.Name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	t.Fn(ctx)
}
