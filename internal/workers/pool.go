// Package workers provides the bounded worker pool used for parallel
// candidate evaluation.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work executed on the pool.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Pool runs tasks on a fixed set of workers over a bounded queue. Worker
// panics are recovered and counted as failures rather than crashing the
// process.
type Pool struct {
	logger    *zap.Logger
	workers   int
	queue     chan Task
	wg        sync.WaitGroup
	started   atomic.Bool
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(logger *zap.Logger, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	return &Pool{
		logger:  logger.Named("workers"),
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
}

// Start launches the workers. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a task, blocking while the queue is full. Returns an error
// when the context is cancelled before the task is accepted.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool submit cancelled: %w", ctx.Err())
	}
}

// Stop closes the queue and waits for in-flight tasks to drain.
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
}

// Stats reports submitted/completed/failed counts.
func (p *Pool) Stats() (submitted, completed, failed int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(ctx, id, task)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("task panicked",
				zap.Int("worker", id),
				zap.Any("panic", r))
		}
	}()

	if err := task.Execute(ctx); err != nil {
		p.failed.Add(1)
		p.logger.Debug("task failed", zap.Int("worker", id), zap.Error(err))
		return
	}
	p.completed.Add(1)
}
