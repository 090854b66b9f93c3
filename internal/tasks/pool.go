package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ledgerly/internal/logger"
)

// Pool executes tasks on a fixed set of worker goroutines backed by a
// buffered channel. Failed tasks are retried in place with exponential
// backoff unless the error is permanent.
type Pool struct {
	queue   chan Task
	backoff time.Duration
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// NewPool starts workers goroutines draining a queue of the given size.
func NewPool(workers, queueSize int, backoff time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:   make(chan Task, queueSize),
		backoff: backoff,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue implements Executor. It never blocks; a full queue returns
// ErrQueueFull so the caller can fall back or surface the failure.
// The mutex is held across the send so Stop cannot close the queue
// between the stopped check and the send.
func (p *Pool) Enqueue(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects further work and waits for the workers to drain. Queued
// tasks keep their full retry budget; the context is cancelled only once
// every worker has exited.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	log := logger.Named("tasks")
	for task := range p.queue {
		p.run(log, task)
	}
}

func (p *Pool) run(log *zap.SugaredLogger, task Task) {
	for attempt := 0; ; attempt++ {
		err := task.Run(p.ctx)
		if err == nil {
			return
		}
		if IsPermanent(err) {
			log.Warnw("task discarded", "task", task.Name, "error", err)
			return
		}
		if attempt >= task.MaxRetries {
			log.Errorw("task failed after retries", "task", task.Name, "attempts", attempt+1, "error", err)
			return
		}
		wait := p.backoff << attempt
		log.Warnw("task retrying", "task", task.Name, "attempt", attempt+1, "backoff", wait, "error", err)
		time.Sleep(wait)
	}
}

var _ Executor = (*Pool)(nil)
