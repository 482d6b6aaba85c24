package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryAdapter is an in-process TaskAdapter for tests and local development.
// It is also the engine behind the flat-file adapter via Snapshot and Restore.
type MemoryAdapter struct {
	mu       sync.RWMutex
	priority Priority
	codec    Codec

	next    int64
	order   []int64
	pending map[int64]*Job

	failedOrder []int64
	failed      map[int64]*Job

	taskOrder []string
	tasks     map[string]*Job
}

// MemoryOption configures a MemoryAdapter
type MemoryOption func(*MemoryAdapter)

// WithMemoryPriority sets the initial ordering
func WithMemoryPriority(p Priority) MemoryOption {
	return func(m *MemoryAdapter) {
		if p.Valid() {
			m.priority = p
		}
	}
}

// WithMemoryCodec sets the codec used by FailedJobData and Snapshot
func WithMemoryCodec(c Codec) MemoryOption {
	return func(m *MemoryAdapter) {
		if c != nil {
			m.codec = c
		}
	}
}

// NewMemoryAdapter creates an empty in-memory adapter
func NewMemoryAdapter(opts ...MemoryOption) *MemoryAdapter {
	m := &MemoryAdapter{
		priority: FIFO,
		codec:    NewJSONCodec(nil),
		next:     1,
		pending:  make(map[int64]*Job),
		failed:   make(map[int64]*Job),
		tasks:    make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryAdapter) Push(_ context.Context, job *Job) error {
	if job == nil {
		return ErrJobNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.next
	m.next++
	m.pending[idx] = job.Clone()
	if PushToHead(m.priority, job) {
		m.order = slices.Insert(m.order, 0, idx)
	} else {
		m.order = append(m.order, idx)
	}
	return nil
}

func (m *MemoryAdapter) Pop(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return nil, nil
	}
	idx := m.order[0]
	m.order = slices.Delete(m.order, 0, 1)
	job := m.pending[idx]
	delete(m.pending, idx)
	return job, nil
}

func (m *MemoryAdapter) HasJobs(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order) > 0, nil
}

func (m *MemoryAdapter) Bounds(_ context.Context) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	end := m.next - 1
	start := m.next
	for idx := range m.pending {
		start = min(start, idx)
	}
	for idx := range m.failed {
		start = min(start, idx)
	}
	return start, end, nil
}

func (m *MemoryAdapter) Status(_ context.Context, index int64) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.pending[index]; ok {
		return StatusPending, nil
	}
	if _, ok := m.failed[index]; ok {
		return StatusFailed, nil
	}
	return StatusOpen, nil
}

func (m *MemoryAdapter) Bury(_ context.Context, job *Job) error {
	if job == nil {
		return ErrJobNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.next
	m.next++
	m.failed[idx] = job.Clone()
	m.failedOrder = append(m.failedOrder, idx)
	return nil
}

func (m *MemoryAdapter) HasFailedJob(_ context.Context, index int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.failed[index]
	return ok, nil
}

func (m *MemoryAdapter) FailedJob(_ context.Context, index int64) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.failed[index]
	if !ok {
		return nil, fmt.Errorf("%w: failed index %d", ErrJobNotFound, index)
	}
	return job.Clone(), nil
}

func (m *MemoryAdapter) FailedJobData(ctx context.Context, index int64) ([]byte, error) {
	job, err := m.FailedJob(ctx, index)
	if err != nil {
		return nil, err
	}
	return m.codec.Encode(job)
}

func (m *MemoryAdapter) HasFailedJobs(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.failedOrder) > 0, nil
}

func (m *MemoryAdapter) FailedJobs(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.failedOrder))
	for _, idx := range m.failedOrder {
		jobs = append(jobs, m.failed[idx].Clone())
	}
	return jobs, nil
}

func (m *MemoryAdapter) ClearFailed(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedOrder = nil
	m.failed = make(map[int64]*Job)
	return nil
}

func (m *MemoryAdapter) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.pending = make(map[int64]*Job)
	return nil
}

func (m *MemoryAdapter) SetPriority(p Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Valid() {
		m.priority = p
	}
}

func (m *MemoryAdapter) Priority() Priority {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.priority
}

func (m *MemoryAdapter) IsFIFO() bool { return m.Priority() == FIFO }
func (m *MemoryAdapter) IsFILO() bool { return m.Priority() == FILO }

func (m *MemoryAdapter) Schedule(_ context.Context, task *Job) error {
	if task == nil {
		return ErrJobNil
	}
	if !task.IsTask() {
		return ErrNotTask
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putTask(task)
	return nil
}

func (m *MemoryAdapter) putTask(task *Job) {
	if _, ok := m.tasks[task.ID]; !ok {
		m.taskOrder = append(m.taskOrder, task.ID)
	}
	m.tasks[task.ID] = task.Clone()
}

func (m *MemoryAdapter) Tasks(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.taskOrder), nil
}

func (m *MemoryAdapter) Task(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return task.Clone(), nil
}

// UpdateTask stores the task's current state, inserting it if unknown.
func (m *MemoryAdapter) UpdateTask(ctx context.Context, task *Job) error {
	return m.Schedule(ctx, task)
}

func (m *MemoryAdapter) RemoveTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return nil
	}
	delete(m.tasks, id)
	m.taskOrder = slices.DeleteFunc(m.taskOrder, func(v string) bool { return v == id })
	return nil
}

func (m *MemoryAdapter) TaskCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks), nil
}

func (m *MemoryAdapter) HasTasks(ctx context.Context) (bool, error) {
	n, err := m.TaskCount(ctx)
	return n > 0, err
}

func (m *MemoryAdapter) ClearTasks(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskOrder = nil
	m.tasks = make(map[string]*Job)
	return nil
}

// MemoryEntry is one encoded job of a MemorySnapshot.
type MemoryEntry struct {
	Index int64  `json:"index,omitempty"`
	Data  []byte `json:"data"`
}

// MemorySnapshot is the serialisable state of a MemoryAdapter.
// Pending entries are in dequeue order.
type MemorySnapshot struct {
	Next    int64         `json:"next"`
	Pending []MemoryEntry `json:"pending"`
	Failed  []MemoryEntry `json:"failed"`
	Tasks   []MemoryEntry `json:"tasks"`
}

// Snapshot encodes the whole adapter state with its codec.
func (m *MemoryAdapter) Snapshot() (*MemorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &MemorySnapshot{
		Next:    m.next,
		Pending: make([]MemoryEntry, 0, len(m.order)),
		Failed:  make([]MemoryEntry, 0, len(m.failedOrder)),
		Tasks:   make([]MemoryEntry, 0, len(m.taskOrder)),
	}
	encode := func(idx int64, job *Job) (MemoryEntry, error) {
		data, err := m.codec.Encode(job)
		if err != nil {
			return MemoryEntry{}, fmt.Errorf("encode job %s: %w", job.ID, err)
		}
		return MemoryEntry{Index: idx, Data: data}, nil
	}
	for _, idx := range m.order {
		e, err := encode(idx, m.pending[idx])
		if err != nil {
			return nil, err
		}
		s.Pending = append(s.Pending, e)
	}
	for _, idx := range m.failedOrder {
		e, err := encode(idx, m.failed[idx])
		if err != nil {
			return nil, err
		}
		s.Failed = append(s.Failed, e)
	}
	for _, id := range m.taskOrder {
		e, err := encode(0, m.tasks[id])
		if err != nil {
			return nil, err
		}
		s.Tasks = append(s.Tasks, e)
	}
	return s, nil
}

// Restore replaces the adapter state with a snapshot. The priority is kept.
// A nil snapshot resets the adapter.
func (m *MemoryAdapter) Restore(s *MemorySnapshot) error {
	next := int64(1)
	pending := make(map[int64]*Job)
	failed := make(map[int64]*Job)
	tasks := make(map[string]*Job)
	var order, failedOrder []int64
	var taskOrder []string

	if s != nil {
		next = max(s.Next, 1)
		for _, e := range s.Pending {
			job, err := m.codec.Decode(e.Data)
			if err != nil {
				return err
			}
			pending[e.Index] = job
			order = append(order, e.Index)
			next = max(next, e.Index+1)
		}
		for _, e := range s.Failed {
			job, err := m.codec.Decode(e.Data)
			if err != nil {
				return err
			}
			failed[e.Index] = job
			failedOrder = append(failedOrder, e.Index)
			next = max(next, e.Index+1)
		}
		for _, e := range s.Tasks {
			job, err := m.codec.Decode(e.Data)
			if err != nil {
				return err
			}
			if _, ok := tasks[job.ID]; !ok {
				taskOrder = append(taskOrder, job.ID)
			}
			tasks[job.ID] = job
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = next
	m.order, m.pending = order, pending
	m.failedOrder, m.failed = failedOrder, failed
	m.taskOrder, m.tasks = taskOrder, tasks
	return nil
}
