package queue

import "time"

// Config holds the configuration for queues and the worker
type Config struct {
	Driver             string        `env:"QUEUE_DRIVER" envDefault:"memory"`
	Queues             []string      `env:"QUEUE_NAMES" envDefault:"default" envSeparator:","`
	Priority           string        `env:"QUEUE_PRIORITY" envDefault:"fifo"`
	PullInterval       time.Duration `env:"QUEUE_PULL_INTERVAL" envDefault:"5s"`
	ScheduleInterval   time.Duration `env:"QUEUE_SCHEDULE_INTERVAL" envDefault:"1m"`
	TaskPollInterval   time.Duration `env:"QUEUE_TASK_POLL_INTERVAL" envDefault:"1s"`
	TaskPollIterations int           `env:"QUEUE_TASK_POLL_ITERATIONS" envDefault:"60"`
	TasksFile          string        `env:"QUEUE_TASKS_FILE"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// QueueOptions translates the config into queue options.
func (c Config) QueueOptions() ([]QueueOption, error) {
	p, err := ParsePriority(c.Priority)
	if err != nil {
		return nil, err
	}
	return []QueueOption{
		WithPriority(p),
		WithTaskPollInterval(c.TaskPollInterval),
		WithTaskPollIterations(c.TaskPollIterations),
	}, nil
}

// WorkerOptions translates the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithPullInterval(c.PullInterval),
		WithScheduleInterval(c.ScheduleInterval),
	}
}
