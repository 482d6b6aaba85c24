package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	app              App
	pullInterval     time.Duration
	scheduleInterval time.Duration
	logger           *slog.Logger
}

// WithApp sets the execution context passed to every job
func WithApp(app App) WorkerOption {
	return func(o *workerOptions) {
		o.app = app
	}
}

// WithPullInterval sets how often the worker drains its queues
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithScheduleInterval sets how often the worker evaluates tasks
func WithScheduleInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.scheduleInterval = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
