// Package worker applies queued rating periods one at a time.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/pkg/logger"
	"github.com/okian/periodrank/pkg/metrics"
)

// Job is what the worker reads off the queue.
type Job = model.PeriodJob

// Applier applies one queued period.
type Applier interface {
	ApplyJob(ctx context.Context, j Job) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, j Job) error

// ApplyJob calls f.
func (f ApplierFunc) ApplyJob(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam
	return f(ctx, j)
}

// Queue defines how the worker receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker consumes jobs until stopped.
type Worker interface {
	// Run processes jobs until ctx is canceled, Shutdown is called, or the
	// queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand and waits for it.
	Shutdown(ctx context.Context) error

	// Wait blocks until Run has returned.
	Wait(ctx context.Context) error
}

// InMemoryWorker is the single writer of rating periods. Running exactly one
// keeps period application strictly sequential.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string
	onDone  func(ctx context.Context, j Job, err error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue and applying with applier.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		onDone:   func(context.Context, Job, error) {},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
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
			err := w.process(ctx, j)
			w.onDone(ctx, j, err)
		}
	}
}

// Shutdown signals the worker to stop and waits for Run to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	return w.Wait(ctx)
}

// Wait blocks until Run returns or ctx is done.
func (w *InMemoryWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.applier.ApplyJob(ctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_error")
		w.logger.Error(ctx, "period apply failed",
			logger.String("period", j.ID),
			logger.Duration("queued", start.Sub(j.Received)),
			logger.Error(err),
		)
		return fmt.Errorf("apply period %s: %w", j.ID, err)
	}
	w.logger.Debug(ctx, "period applied", logger.String("period", j.ID))
	return nil
}
