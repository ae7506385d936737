package server

import (
	"context"
	"sync"
	"time"

	"TrendCascade/pkg/logger"
	"TrendCascade/pkg/queue"
)

// Task enqueues one job type on a fixed interval. A zero interval disables it.
type Task struct {
	Job      string
	Interval time.Duration
	Payload  interface{}
}

// Scheduler publishes periodic jobs; the queue workers do the actual work, so a slow run never
// blocks the next tick.
type Scheduler struct {
	pub    queue.Publisher
	tasks  []Task
	log    *logger.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(pub queue.Publisher, lgr *logger.Logger, tasks ...Task) *Scheduler {
	if lgr == nil {
		lgr = logger.NewNop()
	}
	return &Scheduler{pub: pub, tasks: tasks, log: lgr}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		if t.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, t)
		s.log.Info("scheduled job", logger.String("job", t.Job), logger.Duration("interval", t.Interval))
	}
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pub.PublishMessage(ctx, t.Job, t.Payload); err != nil {
				s.log.Error("enqueue scheduled job", logger.String("job", t.Job), logger.Error(err))
			}
		}
	}
}

// Stop cancels every loop and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
