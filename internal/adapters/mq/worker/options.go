package worker

import (
	"context"

	"github.com/okian/periodrank/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnDone registers a hook called after every job, successful or not.
func WithOnDone(fn func(ctx context.Context, j Job, err error)) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.onDone = fn
		}
	}
}
