package queue

import (
	"log/slog"
	"time"
)

// QueueOption is a functional option for configuring a queue
type QueueOption func(*queueOptions)

type queueOptions struct {
	priority       *Priority
	logger         *slog.Logger
	clock          func() time.Time
	pollInterval   time.Duration
	pollIterations int
}

// WithPriority sets the ordering on the queue's adapter
func WithPriority(p Priority) QueueOption {
	return func(o *queueOptions) {
		if p.Valid() {
			o.priority = &p
		}
	}
}

// WithQueueLogger sets the logger for the queue
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(o *queueOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used to decide whether tasks are due
func WithClock(clock func() time.Time) QueueOption {
	return func(o *queueOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTaskPollInterval sets the tick of the sub-minute task window
func WithTaskPollInterval(d time.Duration) QueueOption {
	return func(o *queueOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithTaskPollIterations sets how many ticks a sub-minute task window lasts
func WithTaskPollIterations(n int) QueueOption {
	return func(o *queueOptions) {
		if n > 0 {
			o.pollIterations = n
		}
	}
}

// AddOption adjusts a job as it is added to a queue
type AddOption func(*Job)

// WithAttempts overrides the job's max attempts
func WithAttempts(n uint) AddOption {
	return func(j *Job) { j.MaxAttempts = n }
}
