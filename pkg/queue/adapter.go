package queue

import "context"

// Adapter is durable storage for pending and failed jobs.
//
// Every pushed job gets a monotonically increasing index. Ordering follows
// the adapter's priority: FIFO pushes to the tail, FILO pushes to the head,
// and both pop from the head. A job whose last attempt failed is pushed to
// the tail under FILO so that retries do not starve fresh work.
//
// Implementations store copies; Pop hands ownership of the returned job to
// the caller.
type Adapter interface {
	Push(ctx context.Context, job *Job) error
	// Pop returns (nil, nil) when there is nothing to dequeue.
	Pop(ctx context.Context) (*Job, error)
	HasJobs(ctx context.Context) (bool, error)

	// Bounds returns the lowest index still held and the highest index
	// assigned so far. An empty adapter has start == end+1.
	Bounds(ctx context.Context) (start, end int64, err error)
	Status(ctx context.Context, index int64) (Status, error)

	// Bury moves a job straight into the failed store.
	Bury(ctx context.Context, job *Job) error
	HasFailedJob(ctx context.Context, index int64) (bool, error)
	FailedJob(ctx context.Context, index int64) (*Job, error)
	// FailedJobData returns the stored bytes without decoding them.
	FailedJobData(ctx context.Context, index int64) ([]byte, error)
	HasFailedJobs(ctx context.Context) (bool, error)
	FailedJobs(ctx context.Context) ([]*Job, error)
	ClearFailed(ctx context.Context) error
	// Clear drops pending jobs.
	Clear(ctx context.Context) error

	SetPriority(p Priority)
	Priority() Priority
	IsFIFO() bool
	IsFILO() bool
}

// TaskAdapter is an Adapter that can also persist scheduled tasks.
type TaskAdapter interface {
	Adapter

	// Schedule stores a task, replacing one with the same ID.
	Schedule(ctx context.Context, task *Job) error
	// Tasks returns task IDs in scheduling order.
	Tasks(ctx context.Context) ([]string, error)
	// Task returns (nil, nil) when the ID is unknown.
	Task(ctx context.Context, id string) (*Job, error)
	UpdateTask(ctx context.Context, task *Job) error
	RemoveTask(ctx context.Context, id string) error
	TaskCount(ctx context.Context) (int, error)
	HasTasks(ctx context.Context) (bool, error)
	ClearTasks(ctx context.Context) error
}

// HealthChecker is implemented by adapters backed by a remote service.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// PushToHead reports whether a pushed job goes to the head of the queue
// under priority p. Otherwise it goes to the tail.
func PushToHead(p Priority, job *Job) bool {
	return p == FILO && !job.HasFailed()
}
