package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// workerPool runs jobs on a fixed number of goroutines. Submission blocks
// until a worker is free, so a busy pool applies backpressure to accepted
// requests instead of queueing without bound.
type workerPool struct {
	size   int
	jobs   chan func()
	quit   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup

	active    atomic.Int32
	completed atomic.Int64
}

func newWorkerPool(size int, logger *slog.Logger) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{
		size:   size,
		jobs:   make(chan func()),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

func (p *workerPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
	p.logger.Info("worker pool started", "workers", p.size)
}

func (p *workerPool) loop(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			p.run(id, job)
		}
	}
}

func (p *workerPool) run(id int, job func()) {
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.completed.Add(1)
		if rec := recover(); rec != nil {
			p.logger.Error("panic in worker",
				"worker", id,
				"error", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	job()
}

// submit hands job to a free worker. It fails with ErrPoolStopped after
// stop and with ctx.Err() if ctx is done first.
func (p *workerPool) submit(ctx context.Context, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop signals the workers to exit and waits for running jobs, or for ctx.
func (p *workerPool) stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", "completed_jobs", p.completed.Load())
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool stop timed out", "active_workers", p.active.Load())
		return ctx.Err()
	}
}
