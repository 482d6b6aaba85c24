package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

const (
	statusPending = 1
	statusFailed  = 2
)

// Adapter implements queue.TaskAdapter over one Store. Rows are keyed by
// queue name so many queues share the same tables.
//
// Dequeue order is the position column: tail pushes use +index and head
// pushes use -index, so the most recent head push always sorts first.
type Adapter struct {
	store    *Store
	name     string
	codec    queue.Codec
	priority atomic.Int32
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPriority sets the initial ordering.
func WithPriority(p queue.Priority) Option {
	return func(a *Adapter) { a.SetPriority(p) }
}

// WithCodec sets the codec used for stored jobs.
func WithCodec(c queue.Codec) Option {
	return func(a *Adapter) {
		if c != nil {
			a.codec = c
		}
	}
}

// Queue returns an adapter for the queue called name.
func (s *Store) Queue(name string, opts ...Option) *Adapter {
	a := &Adapter{store: s, name: name, codec: queue.NewJSONCodec(nil)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) exec(ctx context.Context, query string, args ...any) error {
	_, err := a.store.db.ExecContext(ctx, a.store.rebind(query), args...)
	return err
}

func (a *Adapter) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return a.store.db.QueryRowContext(ctx, a.store.rebind(query), args...)
}

func (a *Adapter) insert(ctx context.Context, job *queue.Job, status int, toHead bool) error {
	if job == nil {
		return queue.ErrJobNil
	}
	data, err := a.codec.Encode(job)
	if err != nil {
		return err
	}

	tx, err := a.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var idx int64
	err = tx.QueryRowContext(ctx, a.store.rebind(
		`INSERT INTO jobqueue_counters (queue, next_index) VALUES (?, 1)
		 ON CONFLICT (queue) DO UPDATE SET next_index = jobqueue_counters.next_index + 1
		 RETURNING next_index`), a.name).Scan(&idx)
	if err != nil {
		return err
	}
	position := idx
	if toHead {
		position = -idx
	}
	_, err = tx.ExecContext(ctx, a.store.rebind(
		`INSERT INTO jobqueue_jobs (queue, idx, position, status, payload) VALUES (?, ?, ?, ?, ?)`),
		a.name, idx, position, status, string(data))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (a *Adapter) Push(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	return a.insert(ctx, job, statusPending, queue.PushToHead(a.Priority(), job))
}

func (a *Adapter) Pop(ctx context.Context) (*queue.Job, error) {
	lock := ""
	if a.store.dialect == Postgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	var payload string
	err := a.queryRow(ctx,
		`DELETE FROM jobqueue_jobs WHERE queue = ? AND idx = (
			SELECT idx FROM jobqueue_jobs WHERE queue = ? AND status = ?
			ORDER BY position LIMIT 1`+lock+`
		) RETURNING payload`, a.name, a.name, statusPending).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode([]byte(payload))
}

func (a *Adapter) count(ctx context.Context, status int) (int, error) {
	var n int
	err := a.queryRow(ctx,
		`SELECT COUNT(*) FROM jobqueue_jobs WHERE queue = ? AND status = ?`, a.name, status).Scan(&n)
	return n, err
}

func (a *Adapter) HasJobs(ctx context.Context) (bool, error) {
	n, err := a.count(ctx, statusPending)
	return n > 0, err
}

func (a *Adapter) Bounds(ctx context.Context) (int64, int64, error) {
	var end int64
	err := a.queryRow(ctx, `SELECT next_index FROM jobqueue_counters WHERE queue = ?`, a.name).Scan(&end)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, err
	}
	var start sql.NullInt64
	if err := a.queryRow(ctx, `SELECT MIN(idx) FROM jobqueue_jobs WHERE queue = ?`, a.name).Scan(&start); err != nil {
		return 0, 0, err
	}
	if !start.Valid {
		return end + 1, end, nil
	}
	return start.Int64, end, nil
}

func (a *Adapter) Status(ctx context.Context, index int64) (queue.Status, error) {
	var status int
	err := a.queryRow(ctx,
		`SELECT status FROM jobqueue_jobs WHERE queue = ? AND idx = ?`, a.name, index).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.StatusOpen, nil
	}
	if err != nil {
		return queue.StatusOpen, err
	}
	if status == statusFailed {
		return queue.StatusFailed, nil
	}
	return queue.StatusPending, nil
}

func (a *Adapter) Bury(ctx context.Context, job *queue.Job) error {
	return a.insert(ctx, job, statusFailed, false)
}

func (a *Adapter) HasFailedJob(ctx context.Context, index int64) (bool, error) {
	s, err := a.Status(ctx, index)
	return s == queue.StatusFailed, err
}

func (a *Adapter) FailedJob(ctx context.Context, index int64) (*queue.Job, error) {
	data, err := a.FailedJobData(ctx, index)
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(data)
}

func (a *Adapter) FailedJobData(ctx context.Context, index int64) ([]byte, error) {
	var payload string
	err := a.queryRow(ctx,
		`SELECT payload FROM jobqueue_jobs WHERE queue = ? AND idx = ? AND status = ?`,
		a.name, index, statusFailed).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: failed index %d", queue.ErrJobNotFound, index)
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (a *Adapter) HasFailedJobs(ctx context.Context) (bool, error) {
	n, err := a.count(ctx, statusFailed)
	return n > 0, err
}

func (a *Adapter) FailedJobs(ctx context.Context) ([]*queue.Job, error) {
	rows, err := a.store.db.QueryContext(ctx, a.store.rebind(
		`SELECT payload FROM jobqueue_jobs WHERE queue = ? AND status = ? ORDER BY idx`),
		a.name, statusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*queue.Job{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		job, err := a.codec.Decode([]byte(payload))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (a *Adapter) ClearFailed(ctx context.Context) error {
	return a.exec(ctx, `DELETE FROM jobqueue_jobs WHERE queue = ? AND status = ?`, a.name, statusFailed)
}

func (a *Adapter) Clear(ctx context.Context) error {
	return a.exec(ctx, `DELETE FROM jobqueue_jobs WHERE queue = ? AND status = ?`, a.name, statusPending)
}

func (a *Adapter) SetPriority(p queue.Priority) {
	if p.Valid() {
		a.priority.Store(int32(p))
	}
}

func (a *Adapter) Priority() queue.Priority { return queue.Priority(a.priority.Load()) }
func (a *Adapter) IsFIFO() bool             { return a.Priority() == queue.FIFO }
func (a *Adapter) IsFILO() bool             { return a.Priority() == queue.FILO }

func (a *Adapter) Schedule(ctx context.Context, task *queue.Job) error {
	if task == nil {
		return queue.ErrJobNil
	}
	if !task.IsTask() {
		return queue.ErrNotTask
	}
	data, err := a.codec.Encode(task)
	if err != nil {
		return err
	}
	// seq is only assigned on first insert, so rescheduling keeps the position
	return a.exec(ctx,
		`INSERT INTO jobqueue_tasks (queue, id, seq, payload)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM jobqueue_tasks WHERE queue = ?), ?)
		 ON CONFLICT (queue, id) DO UPDATE SET payload = excluded.payload`,
		a.name, task.ID, a.name, string(data))
}

func (a *Adapter) Tasks(ctx context.Context) ([]string, error) {
	rows, err := a.store.db.QueryContext(ctx, a.store.rebind(
		`SELECT id FROM jobqueue_tasks WHERE queue = ? ORDER BY seq, id`), a.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (a *Adapter) Task(ctx context.Context, id string) (*queue.Job, error) {
	var payload string
	err := a.queryRow(ctx,
		`SELECT payload FROM jobqueue_tasks WHERE queue = ? AND id = ?`, a.name, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode([]byte(payload))
}

func (a *Adapter) UpdateTask(ctx context.Context, task *queue.Job) error {
	return a.Schedule(ctx, task)
}

func (a *Adapter) RemoveTask(ctx context.Context, id string) error {
	return a.exec(ctx, `DELETE FROM jobqueue_tasks WHERE queue = ? AND id = ?`, a.name, id)
}

func (a *Adapter) TaskCount(ctx context.Context) (int, error) {
	var n int
	err := a.queryRow(ctx, `SELECT COUNT(*) FROM jobqueue_tasks WHERE queue = ?`, a.name).Scan(&n)
	return n, err
}

func (a *Adapter) HasTasks(ctx context.Context) (bool, error) {
	n, err := a.TaskCount(ctx)
	return n > 0, err
}

func (a *Adapter) ClearTasks(ctx context.Context) error {
	return a.exec(ctx, `DELETE FROM jobqueue_tasks WHERE queue = ?`, a.name)
}

// Healthcheck pings the underlying database.
func (a *Adapter) Healthcheck(ctx context.Context) error {
	return a.store.Healthcheck(ctx)
}
