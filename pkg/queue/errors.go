package queue

import "errors"

// Common errors
var (
	// ErrAdapterNil is returned when a nil adapter is provided
	ErrAdapterNil = errors.New("adapter cannot be nil")

	// ErrJobNil is returned when attempting to push or schedule a nil job
	ErrJobNil = errors.New("job cannot be nil")

	// ErrNotTask is returned when a job without a schedule is used as a task
	ErrNotTask = errors.New("job has no schedule")

	// ErrUnsupportedOperation is returned when the adapter cannot schedule tasks
	ErrUnsupportedOperation = errors.New("operation not supported by adapter")

	// ErrNoCallable is returned when a callable work unit has no bound function
	ErrNoCallable = errors.New("no callable bound to job")

	// ErrNoCommandRoute is returned when the app has no route for a named command.
	// Queue treats it as non-fatal.
	ErrNoCommandRoute = errors.New("no route for command")

	// ErrInvalidPriority is returned for an unknown ordering name
	ErrInvalidPriority = errors.New("priority must be fifo, lilo, filo or lifo")

	// ErrInvalidTime is returned when a run-until value cannot be parsed
	ErrInvalidTime = errors.New("invalid time value")

	// ErrQueueNotFound is returned when the worker has no queue with the given name
	ErrQueueNotFound = errors.New("queue not found")

	// ErrQueueExists is returned when adding a queue whose name is taken
	ErrQueueExists = errors.New("queue already registered")

	// ErrJobNotFound is returned when an index or id addresses nothing
	ErrJobNotFound = errors.New("job not found")

	// ErrWorkerStarted is returned when starting a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when stopping an idle worker
	ErrWorkerNotStarted = errors.New("worker not started")

	// ErrCodec is returned when a job cannot be encoded or decoded
	ErrCodec = errors.New("failed to encode or decode job")
)
