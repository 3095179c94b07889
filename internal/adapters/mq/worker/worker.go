// Package worker runs queued department refreshes.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/botpulse/internal/adapters/mq/queue"
	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	maxDefaultWorkers     = 4
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Refresher re-fetches one department.
type Refresher interface {
	Refresh(ctx context.Context, department string) error
}

// Pending is the set of departments with a queued job. A worker clears the
// department when it picks the job up so a request arriving mid-refresh
// queues a fresh one.
type Pending interface {
	Unrecord(ctx context.Context, id string)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes refresh jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	refresher Refresher
	pending   Pending
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, refresher Refresher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		refresher: refresher,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "refresh failed", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) error {
	if w.pending != nil {
		w.pending.Unrecord(ctx, j.Department)
	}

	start := time.Now()
	err := w.refresher.Refresh(ctx, j.Department)
	ms := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordRefresh("error", ms)
		metrics.RecordErrorByComponent("worker", "refresh_error")
		return fmt.Errorf("refresh %s (%s): %w", j.Department, j.Reason, err)
	}
	metrics.RecordRefresh("ok", ms)
	w.logger.Debug(ctx, "department refreshed",
		logger.String("department", j.Department),
		logger.String("reason", j.Reason),
		logger.Float64("ms", ms),
		logger.Duration("queued", start.Sub(j.Requested)))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one means
// min(NumCPU, 4).
func NewPool(workerCount int, q Queue, refresher Refresher, pending Pending) *Pool {
	if workerCount < 1 {
		workerCount = min(runtime.NumCPU(), maxDefaultWorkers)
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, refresher,
			WithName("worker-"+strconv.Itoa(i)),
			WithPending(pending),
		)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater keeps the queue gauge current between enqueues.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	lenner, ok := p.queue.(interface{ Len(context.Context) int })
	if !ok {
		return
	}
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			lenner.Len(ctx)
		}
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
