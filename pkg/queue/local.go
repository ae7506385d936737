package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrendCascade/pkg/logger"

	"github.com/google/uuid"
)

// LocalQueue runs jobs on an in-process worker pool. It is the fallback when Redis is disabled;
// pending messages are lost on restart.
type LocalQueue struct {
	logger *logger.Logger
	config *QueueConfig
	jobs   map[string]Job
	ch     chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewLocalQueue(lgr *logger.Logger, config *QueueConfig, buffer int) *LocalQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job),
		ch:     make(chan Message, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *LocalQueue) RegisterJobs(jobs ...Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range jobs {
		q.jobs[job.Type()] = job
	}
}

func (q *LocalQueue) Start() error {
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return nil
}

func (q *LocalQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrNotRunning
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("%w: %s", ErrNoJob, msgType)
	}
	msg, err := newMessage(uuid.NewString(), msgType, payload)
	if err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for msg := range q.ch {
		q.run(msg)
	}
}

func (q *LocalQueue) run(msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()

	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil {
			return
		}
		q.logger.Error("job failed",
			logger.String("job", job.Name()),
			logger.String("id", msg.ID),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if !shouldRetry(msg, q.config.RetryLimit, err) {
			return
		}
		msg.Attempts++
		select {
		case <-time.After(q.config.RetryDelay):
		case <-q.ctx.Done():
			return
		}
	}
}

// Stop drains queued messages, then waits for workers or ctx.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("timeout: %w", ctx.Err())
	}
}
