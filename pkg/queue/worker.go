package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobqueue/pkg/logger"
)

// Worker fans work and task runs out across a set of named queues, passing
// the same App to every job.
type Worker struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	order  []string

	app      App
	workerID uuid.UUID

	// Configuration
	pullInterval     time.Duration
	scheduleInterval time.Duration
	logger           *slog.Logger

	// State management
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker without queues
func NewWorker(opts ...WorkerOption) *Worker {
	options := &workerOptions{
		pullInterval:     5 * time.Second,
		scheduleInterval: time.Minute,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		queues:           make(map[string]*Queue),
		app:              options.app,
		workerID:         id,
		pullInterval:     options.pullInterval,
		scheduleInterval: options.scheduleInterval,
		logger:           options.logger.With(logger.Component("worker"), slog.String("worker_id", id.String())),
	}
}

// AddQueue registers q under its name. A nil queue is ignored.
func (w *Worker) AddQueue(q *Queue) error {
	if q == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.queues[q.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrQueueExists, q.Name())
	}
	w.queues[q.Name()] = q
	w.order = append(w.order, q.Name())
	return nil
}

func (w *Worker) Queue(name string) (*Queue, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	q, ok := w.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
	}
	return q, nil
}

// Queues returns queue names in registration order.
func (w *Worker) Queues() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.order)
}

func (w *Worker) snapshot() []*Queue {
	w.mu.RLock()
	defer w.mu.RUnlock()
	qs := make([]*Queue, 0, len(w.order))
	for _, name := range w.order {
		qs = append(qs, w.queues[name])
	}
	return qs
}

// Work runs one job from the named queue.
func (w *Worker) Work(ctx context.Context, name string) (*Job, error) {
	q, err := w.Queue(name)
	if err != nil {
		return nil, err
	}
	return q.Work(ctx, w.app)
}

// WorkAll runs one job from every queue. Queues that were empty are absent
// from the result. Errors are collected and do not stop the other queues.
func (w *Worker) WorkAll(ctx context.Context) (map[string]*Job, error) {
	jobs := make(map[string]*Job)
	var errs []error
	for _, q := range w.snapshot() {
		job, err := q.Work(ctx, w.app)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
		}
		if job != nil {
			jobs[q.Name()] = job
		}
	}
	return jobs, errors.Join(errs...)
}

// Run evaluates the tasks of the named queue.
func (w *Worker) Run(ctx context.Context, name string) (map[string]*Job, error) {
	q, err := w.Queue(name)
	if err != nil {
		return nil, err
	}
	return q.Run(ctx, w.app)
}

// RunAll evaluates the tasks of every queue whose adapter has a task store.
// Queues run concurrently so one queue's sub-minute poll window does not
// delay the minute-level tasks of the others. An error in one queue does not
// cancel the rest.
func (w *Worker) RunAll(ctx context.Context) (map[string]map[string]*Job, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]map[string]*Job)
		errs    []error
		g       errgroup.Group
	)
	for _, q := range w.snapshot() {
		if !q.SupportsTasks() {
			continue
		}
		g.Go(func() error {
			executed, err := q.Run(ctx, w.app)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
			}
			results[q.Name()] = executed
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Stats reports every queue in registration order.
func (w *Worker) Stats(ctx context.Context) ([]Stats, error) {
	qs := w.snapshot()
	stats := make([]Stats, 0, len(qs))
	for _, q := range qs {
		s, err := q.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.Name(), err)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// Healthcheck pings every adapter that implements HealthChecker.
func (w *Worker) Healthcheck(ctx context.Context) error {
	var errs []error
	for _, q := range w.snapshot() {
		if hc, ok := q.Adapter().(HealthChecker); ok {
			if err := hc.Healthcheck(ctx); err != nil {
				errs = append(errs, fmt.Errorf("queue %s: %w", q.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Start launches the background loops: one drains every queue each pull
// interval, the other evaluates tasks on minute boundaries.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(2)
	go w.workLoop(ctx)
	go w.scheduleLoop(ctx)

	w.logger.Info("worker started",
		slog.Any("queues", w.Queues()),
		slog.Duration("pull_interval", w.pullInterval),
		slog.Duration("schedule_interval", w.scheduleInterval))
	return nil
}

// Stop cancels the loops and waits for the running job to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.logger.Info("worker stopping, waiting for active jobs to complete")
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

// Process starts the worker and returns a function suitable for errgroup
func (w *Worker) Process(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) workLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain works each queue through the jobs it held when the pass began. A
// failed job goes back to the tail, behind that budget, so it is retried on a
// later tick without holding up the jobs queued after it.
func (w *Worker) drain(ctx context.Context) {
	for _, q := range w.snapshot() {
		start, end, err := q.Adapter().Bounds(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to read queue bounds", logger.QueueName(q.Name()), logger.Error(err))
			continue
		}
		for budget := end - start + 1; budget > 0 && ctx.Err() == nil; budget-- {
			job, err := q.Work(ctx, w.app)
			if err != nil {
				w.logger.ErrorContext(ctx, "failed to process job", logger.QueueName(q.Name()), logger.Error(err))
				break
			}
			if job == nil {
				break
			}
		}
	}
}

func (w *Worker) scheduleLoop(ctx context.Context) {
	defer w.wg.Done()

	// align to the next minute so minute-level tasks see second 0
	now := time.Now()
	timer := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(w.scheduleInterval)
	defer ticker.Stop()

	for {
		w.runTasks(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) runTasks(ctx context.Context) {
	results, err := w.RunAll(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to run tasks", logger.Error(err))
	}
	for name, executed := range results {
		if len(executed) > 0 {
			w.logger.DebugContext(ctx, "tasks executed", logger.QueueName(name), slog.Int("count", len(executed)))
		}
	}
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
