// Package filestore persists a queue as a single JSON document in a
// file.Storage, either on local disk or in S3.
//
// The document is re-read before and rewritten after every mutating call, so
// several queues can share one storage under different keys. Concurrent
// writers in separate processes are not coordinated.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dmitrymomot/jobqueue/pkg/file"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// ErrCorruptDocument is returned when the stored document cannot be decoded.
var ErrCorruptDocument = errors.New("filestore: corrupt queue document")

// Adapter implements queue.TaskAdapter on top of a file.Storage.
type Adapter struct {
	mu      sync.Mutex
	storage file.Storage
	key     string
	mem     *queue.MemoryAdapter
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	priority queue.Priority
	codec    queue.Codec
}

// WithPriority sets the initial ordering.
func WithPriority(p queue.Priority) Option {
	return func(o *options) { o.priority = p }
}

// WithCodec sets the codec used for stored jobs.
func WithCodec(c queue.Codec) Option {
	return func(o *options) { o.codec = c }
}

// New returns an adapter storing its document under key, e.g. "emails.json".
func New(storage file.Storage, key string, opts ...Option) *Adapter {
	o := options{priority: queue.FIFO}
	for _, opt := range opts {
		opt(&o)
	}
	return &Adapter{
		storage: storage,
		key:     key,
		mem: queue.NewMemoryAdapter(
			queue.WithMemoryPriority(o.priority),
			queue.WithMemoryCodec(o.codec),
		),
	}
}

func (a *Adapter) load(ctx context.Context) error {
	data, err := a.storage.Read(ctx, a.key)
	if errors.Is(err, file.ErrFileNotFound) {
		return a.mem.Restore(nil)
	}
	if err != nil {
		return err
	}
	var snap queue.MemorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Join(ErrCorruptDocument, err)
	}
	if err := a.mem.Restore(&snap); err != nil {
		return errors.Join(ErrCorruptDocument, err)
	}
	return nil
}

func (a *Adapter) save(ctx context.Context) error {
	snap, err := a.mem.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Join(queue.ErrCodec, err)
	}
	return a.storage.Write(ctx, a.key, data)
}

// view runs fn against a fresh copy of the stored state.
func (a *Adapter) view(ctx context.Context, fn func(*queue.MemoryAdapter) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.load(ctx); err != nil {
		return err
	}
	return fn(a.mem)
}

// update runs fn and writes the resulting state back.
func (a *Adapter) update(ctx context.Context, fn func(*queue.MemoryAdapter) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.load(ctx); err != nil {
		return err
	}
	if err := fn(a.mem); err != nil {
		return err
	}
	return a.save(ctx)
}

func (a *Adapter) Push(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.Push(ctx, job) })
}

func (a *Adapter) Pop(ctx context.Context) (*queue.Job, error) {
	var job *queue.Job
	err := a.update(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		job, err = m.Pop(ctx)
		return err
	})
	return job, err
}

func (a *Adapter) HasJobs(ctx context.Context) (bool, error) {
	var ok bool
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		ok, err = m.HasJobs(ctx)
		return err
	})
	return ok, err
}

func (a *Adapter) Bounds(ctx context.Context) (start, end int64, err error) {
	err = a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		start, end, err = m.Bounds(ctx)
		return err
	})
	return start, end, err
}

func (a *Adapter) Status(ctx context.Context, index int64) (queue.Status, error) {
	var s queue.Status
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		s, err = m.Status(ctx, index)
		return err
	})
	return s, err
}

func (a *Adapter) Bury(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.Bury(ctx, job) })
}

func (a *Adapter) HasFailedJob(ctx context.Context, index int64) (bool, error) {
	var ok bool
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		ok, err = m.HasFailedJob(ctx, index)
		return err
	})
	return ok, err
}

func (a *Adapter) FailedJob(ctx context.Context, index int64) (*queue.Job, error) {
	var job *queue.Job
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		job, err = m.FailedJob(ctx, index)
		return err
	})
	return job, err
}

func (a *Adapter) FailedJobData(ctx context.Context, index int64) ([]byte, error) {
	var data []byte
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		data, err = m.FailedJobData(ctx, index)
		return err
	})
	return data, err
}

func (a *Adapter) HasFailedJobs(ctx context.Context) (bool, error) {
	var ok bool
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		ok, err = m.HasFailedJobs(ctx)
		return err
	})
	return ok, err
}

func (a *Adapter) FailedJobs(ctx context.Context) ([]*queue.Job, error) {
	var jobs []*queue.Job
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		jobs, err = m.FailedJobs(ctx)
		return err
	})
	return jobs, err
}

func (a *Adapter) ClearFailed(ctx context.Context) error {
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.ClearFailed(ctx) })
}

func (a *Adapter) Clear(ctx context.Context) error {
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.Clear(ctx) })
}

// SetPriority changes ordering for future pushes. Priority is not persisted.
func (a *Adapter) SetPriority(p queue.Priority) { a.mem.SetPriority(p) }
func (a *Adapter) Priority() queue.Priority    { return a.mem.Priority() }
func (a *Adapter) IsFIFO() bool                { return a.mem.IsFIFO() }
func (a *Adapter) IsFILO() bool                { return a.mem.IsFILO() }

func (a *Adapter) Schedule(ctx context.Context, task *queue.Job) error {
	if task == nil {
		return queue.ErrJobNil
	}
	if !task.IsTask() {
		return queue.ErrNotTask
	}
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.Schedule(ctx, task) })
}

func (a *Adapter) Tasks(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		ids, err = m.Tasks(ctx)
		return err
	})
	return ids, err
}

func (a *Adapter) Task(ctx context.Context, id string) (*queue.Job, error) {
	var task *queue.Job
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		task, err = m.Task(ctx, id)
		return err
	})
	return task, err
}

func (a *Adapter) UpdateTask(ctx context.Context, task *queue.Job) error {
	return a.Schedule(ctx, task)
}

func (a *Adapter) RemoveTask(ctx context.Context, id string) error {
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.RemoveTask(ctx, id) })
}

func (a *Adapter) TaskCount(ctx context.Context) (int, error) {
	var n int
	err := a.view(ctx, func(m *queue.MemoryAdapter) error {
		var err error
		n, err = m.TaskCount(ctx)
		return err
	})
	return n, err
}

func (a *Adapter) HasTasks(ctx context.Context) (bool, error) {
	n, err := a.TaskCount(ctx)
	return n > 0, err
}

func (a *Adapter) ClearTasks(ctx context.Context) error {
	return a.update(ctx, func(m *queue.MemoryAdapter) error { return m.ClearTasks(ctx) })
}

// Healthcheck verifies the document can be read.
func (a *Adapter) Healthcheck(ctx context.Context) error {
	return a.view(ctx, func(*queue.MemoryAdapter) error { return nil })
}
