package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobqueue/pkg/logger"
)

const (
	defaultTaskPollInterval   = time.Second
	defaultTaskPollIterations = 60
)

// Queue binds a name to an Adapter and runs the jobs and tasks it holds.
type Queue struct {
	name           string
	adapter        Adapter
	logger         *slog.Logger
	clock          func() time.Time
	pollInterval   time.Duration
	pollIterations int
}

// NewQueue creates a queue over adapter. An empty name means DefaultQueueName.
func NewQueue(name string, adapter Adapter, opts ...QueueOption) (*Queue, error) {
	if adapter == nil {
		return nil, ErrAdapterNil
	}
	if name == "" {
		name = DefaultQueueName
	}

	options := &queueOptions{
		logger:         slog.Default(),
		clock:          time.Now,
		pollInterval:   defaultTaskPollInterval,
		pollIterations: defaultTaskPollIterations,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.priority != nil {
		adapter.SetPriority(*options.priority)
	}

	return &Queue{
		name:           name,
		adapter:        adapter,
		logger:         options.logger.With(logger.Component("queue"), logger.QueueName(name)),
		clock:          options.clock,
		pollInterval:   options.pollInterval,
		pollIterations: options.pollIterations,
	}, nil
}

func (q *Queue) Name() string       { return q.name }
func (q *Queue) Adapter() Adapter   { return q.adapter }
func (q *Queue) Priority() Priority { return q.adapter.Priority() }
func (q *Queue) IsFIFO() bool       { return q.adapter.IsFIFO() }
func (q *Queue) IsFILO() bool       { return q.adapter.IsFILO() }

func (q *Queue) SetPriority(p Priority) {
	q.adapter.SetPriority(p)
}

// SupportsTasks reports whether the adapter can schedule tasks.
func (q *Queue) SupportsTasks() bool {
	_, ok := q.adapter.(TaskAdapter)
	return ok
}

// AddJob pushes job onto the adapter.
func (q *Queue) AddJob(ctx context.Context, job *Job, opts ...AddOption) error {
	if job == nil {
		return ErrJobNil
	}
	for _, opt := range opts {
		opt(job)
	}
	if err := q.adapter.Push(ctx, job); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}
	q.logger.DebugContext(ctx, "job added", logger.JobID(job.ID), logger.Attempts(job.Attempts))
	return nil
}

// AddTask stores a scheduled job in the adapter's task store.
func (q *Queue) AddTask(ctx context.Context, task *Job) error {
	if task == nil {
		return ErrJobNil
	}
	if err := task.Schedule.Err(); err != nil {
		return err
	}
	if !task.IsTask() {
		return ErrNotTask
	}
	ta, ok := q.adapter.(TaskAdapter)
	if !ok {
		return ErrUnsupportedOperation
	}
	if err := ta.Schedule(ctx, task); err != nil {
		return fmt.Errorf("schedule task %s: %w", task.ID, err)
	}
	q.logger.DebugContext(ctx, "task scheduled", logger.JobID(task.ID), logger.Schedule(task.Schedule.String()))
	return nil
}

// Work pops one job and runs it. It returns (nil, nil) when the queue is
// empty. A popped job that is no longer valid is buried in the failed store.
// A failed run is recorded on the job and the job is pushed back.
func (q *Queue) Work(ctx context.Context, app App) (*Job, error) {
	job, err := q.adapter.Pop(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	if !job.IsValid() {
		q.logger.WarnContext(ctx, "burying invalid job",
			logger.JobID(job.ID),
			logger.Attempts(job.Attempts),
			slog.Bool("expired", job.IsExpired()))
		return job, q.adapter.Bury(ctx, job)
	}

	start := time.Now()
	if execErr := q.execute(ctx, app, job); execErr != nil {
		job.Fail(execErr.Error())
		q.logger.ErrorContext(ctx, "job failed",
			logger.JobID(job.ID),
			logger.Attempts(job.Attempts),
			logger.Duration(time.Since(start)),
			logger.Error(execErr))
		return job, q.adapter.Push(ctx, job)
	}

	job.Complete()
	q.logger.InfoContext(ctx, "job completed",
		logger.JobID(job.ID),
		logger.Attempts(job.Attempts),
		logger.Duration(time.Since(start)))
	return job, nil
}

// execute runs a single attempt. A missing command route is reported as a
// warning and counts as success with a false result.
func (q *Queue) execute(ctx context.Context, app App, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job: %v", r)
		}
	}()

	job.Start()
	if _, err := job.Run(logger.WithJob(ctx, q.name, job.ID), app); err != nil {
		if errors.Is(err, ErrNoCommandRoute) {
			q.logger.WarnContext(ctx, "command route not found", logger.JobID(job.ID), logger.Error(err))
			job.Results = false
			return nil
		}
		return err
	}
	return nil
}

// Run evaluates every stored task and executes the due ones. It returns the
// executed tasks by ID with their post-execution state.
//
// Minute-level tasks are evaluated once. Tasks with a seconds field are
// polled concurrently for up to the configured window, firing on every tick
// they are due. Cancelling ctx ends the window early.
func (q *Queue) Run(ctx context.Context, app App) (map[string]*Job, error) {
	ta, ok := q.adapter.(TaskAdapter)
	if !ok {
		return nil, ErrUnsupportedOperation
	}

	ids, err := ta.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		executed = make(map[string]*Job)
	)
	record := func(task *Job) {
		mu.Lock()
		executed[task.ID] = task
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		task, err := ta.Task(ctx, id)
		if err != nil {
			_ = g.Wait()
			return executed, err
		}
		if task == nil {
			continue
		}
		if !task.IsValid() {
			q.logger.InfoContext(ctx, "removing invalid task", logger.JobID(task.ID), logger.Attempts(task.Attempts))
			if err := ta.RemoveTask(ctx, task.ID); err != nil {
				_ = g.Wait()
				return executed, err
			}
			continue
		}

		if task.Schedule.HasSeconds() {
			g.Go(func() error {
				return q.pollTask(gctx, app, ta, task, record)
			})
			continue
		}

		if !task.IsDue(q.clock()) {
			continue
		}
		if err := q.runTask(ctx, app, ta, task); err != nil {
			_ = g.Wait()
			return executed, err
		}
		record(task)
	}

	err = g.Wait()
	return executed, err
}

// pollTask drives a sub-minute task through one poll window.
func (q *Queue) pollTask(ctx context.Context, app App, ta TaskAdapter, task *Job, record func(*Job)) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for i := 0; i < q.pollIterations; i++ {
		if !task.IsValid() {
			return nil
		}
		if task.IsDue(q.clock()) {
			if err := q.runTask(ctx, app, ta, task); err != nil {
				return err
			}
			record(task)
		}
		if i == q.pollIterations-1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// runTask executes one attempt of a task and persists the outcome: the task
// is updated while still valid and removed otherwise.
func (q *Queue) runTask(ctx context.Context, app App, ta TaskAdapter, task *Job) error {
	start := time.Now()
	if execErr := q.execute(ctx, app, task); execErr != nil {
		task.Fail(execErr.Error())
		q.logger.ErrorContext(ctx, "task failed",
			logger.JobID(task.ID),
			logger.Schedule(task.Schedule.String()),
			logger.Attempts(task.Attempts),
			logger.Error(execErr))
	} else {
		task.Complete()
		q.logger.InfoContext(ctx, "task completed",
			logger.JobID(task.ID),
			logger.Schedule(task.Schedule.String()),
			logger.Attempts(task.Attempts),
			logger.Duration(time.Since(start)))
	}

	// persist even if the poll window was cancelled mid-run
	persistCtx := context.WithoutCancel(ctx)
	if task.IsValid() {
		return ta.UpdateTask(persistCtx, task)
	}
	q.logger.InfoContext(ctx, "task exhausted, removing", logger.JobID(task.ID))
	return ta.RemoveTask(persistCtx, task.ID)
}

func (q *Queue) HasJobs(ctx context.Context) (bool, error) {
	return q.adapter.HasJobs(ctx)
}

func (q *Queue) FailedJobs(ctx context.Context) ([]*Job, error) {
	return q.adapter.FailedJobs(ctx)
}

func (q *Queue) Clear(ctx context.Context) error {
	return q.adapter.Clear(ctx)
}

func (q *Queue) ClearFailed(ctx context.Context) error {
	return q.adapter.ClearFailed(ctx)
}

// ClearTasks drops every scheduled task. It returns ErrUnsupportedOperation
// for adapters without a task store.
func (q *Queue) ClearTasks(ctx context.Context) error {
	ta, ok := q.adapter.(TaskAdapter)
	if !ok {
		return ErrUnsupportedOperation
	}
	return ta.ClearTasks(ctx)
}

// Stats is a point-in-time summary of a queue.
type Stats struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Pending  bool   `json:"has_jobs"`
	Failed   int    `json:"failed"`
	Tasks    int    `json:"tasks"`
}

// Stats collects counters from the adapter.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	s := Stats{Name: q.name, Priority: q.Priority().String()}

	var err error
	if s.Start, s.End, err = q.adapter.Bounds(ctx); err != nil {
		return s, err
	}
	if s.Pending, err = q.adapter.HasJobs(ctx); err != nil {
		return s, err
	}
	failed, err := q.adapter.FailedJobs(ctx)
	if err != nil {
		return s, err
	}
	s.Failed = len(failed)
	if ta, ok := q.adapter.(TaskAdapter); ok {
		if s.Tasks, err = ta.TaskCount(ctx); err != nil {
			return s, err
		}
	}
	return s, nil
}
