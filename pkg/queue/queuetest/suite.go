// Package queuetest holds the behaviour every queue.Adapter implementation
// must share, packaged as reusable test suites.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// EchoCallable is registered on queue.DefaultRegistry so durable adapters can
// rebind it after decoding.
const EchoCallable = "queuetest.echo"

func init() {
	_ = queue.RegisterCallable(EchoCallable, func(_ context.Context, _ queue.App, args []any) (any, error) {
		return args, nil
	})
}

type (
	// Factory returns a fresh, empty adapter using FIFO ordering.
	Factory func(t *testing.T) queue.Adapter

	// TaskFactory returns a fresh, empty task adapter using FIFO ordering.
	TaskFactory func(t *testing.T) queue.TaskAdapter
)

func job(id string) *queue.Job {
	return queue.NewJob(queue.WithID(id), queue.WithShell("echo "+id))
}

func popIDs(t *testing.T, a queue.Adapter) []string {
	t.Helper()
	var ids []string
	for {
		j, err := a.Pop(context.Background())
		require.NoError(t, err)
		if j == nil {
			return ids
		}
		ids = append(ids, j.ID)
	}
}

func pushAll(t *testing.T, a queue.Adapter, jobs ...*queue.Job) {
	t.Helper()
	for _, j := range jobs {
		require.NoError(t, a.Push(context.Background(), j))
	}
}

// RunAdapterSuite checks ordering, the failed store and index bookkeeping.
func RunAdapterSuite(t *testing.T, newAdapter Factory) {
	ctx := context.Background()

	t.Run("empty adapter", func(t *testing.T) {
		a := newAdapter(t)

		j, err := a.Pop(ctx)
		require.NoError(t, err)
		assert.Nil(t, j)

		has, err := a.HasJobs(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		hasFailed, err := a.HasFailedJobs(ctx)
		require.NoError(t, err)
		assert.False(t, hasFailed)

		start, end, err := a.Bounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, end+1, start)
	})

	t.Run("push nil", func(t *testing.T) {
		a := newAdapter(t)
		assert.ErrorIs(t, a.Push(ctx, nil), queue.ErrJobNil)
		assert.ErrorIs(t, a.Bury(ctx, nil), queue.ErrJobNil)
	})

	t.Run("priority", func(t *testing.T) {
		a := newAdapter(t)
		assert.True(t, a.IsFIFO())
		assert.False(t, a.IsFILO())

		a.SetPriority(queue.LIFO)
		assert.Equal(t, queue.FILO, a.Priority())
		assert.True(t, a.IsFILO())
	})

	t.Run("fifo order", func(t *testing.T) {
		a := newAdapter(t)
		pushAll(t, a, job("a"), job("b"), job("c"))

		has, err := a.HasJobs(ctx)
		require.NoError(t, err)
		assert.True(t, has)
		assert.Equal(t, []string{"a", "b", "c"}, popIDs(t, a))
	})

	t.Run("filo order", func(t *testing.T) {
		a := newAdapter(t)
		a.SetPriority(queue.FILO)
		pushAll(t, a, job("a"), job("b"), job("c"))
		assert.Equal(t, []string{"c", "b", "a"}, popIDs(t, a))
	})

	t.Run("failed job goes to the tail under filo", func(t *testing.T) {
		a := newAdapter(t)
		a.SetPriority(queue.FILO)

		failed := job("f")
		failed.Start()
		failed.Fail("boom")

		pushAll(t, a, job("a"), job("b"), failed, job("c"))
		assert.Equal(t, []string{"c", "b", "a", "f"}, popIDs(t, a))
	})

	t.Run("failed job stays at the tail under fifo", func(t *testing.T) {
		a := newAdapter(t)

		failed := job("f")
		failed.Fail("boom")

		pushAll(t, a, job("a"), failed, job("b"))
		assert.Equal(t, []string{"a", "f", "b"}, popIDs(t, a))
	})

	t.Run("stores a copy", func(t *testing.T) {
		a := newAdapter(t)
		j := job("copy")
		pushAll(t, a, j)
		j.Attempts = 42

		popped, err := a.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, popped)
		assert.Equal(t, uint(0), popped.Attempts)
	})

	t.Run("preserves job state", func(t *testing.T) {
		a := newAdapter(t)
		until := time.Now().Add(time.Hour).Truncate(time.Second)
		j := queue.NewJob(
			queue.WithID("state"),
			queue.WithCallable(EchoCallable, nil, "x", 2),
			queue.WithMaxAttempts(5),
			queue.WithRunUntil(until),
		)
		j.Start()
		j.Fail("first")
		pushAll(t, a, j)

		popped, err := a.Pop(ctx)
		require.NoError(t, err)
		require.NotNil(t, popped)
		assert.Equal(t, "state", popped.ID)
		assert.Equal(t, queue.WorkCallable, popped.Work.Kind)
		assert.Equal(t, EchoCallable, popped.Work.Name)
		assert.True(t, popped.Work.Bound())
		assert.Equal(t, uint(5), popped.MaxAttempts)
		assert.Equal(t, uint(1), popped.Attempts)
		require.NotNil(t, popped.RunUntil)
		assert.True(t, until.Equal(*popped.RunUntil))
		require.Len(t, popped.FailedMessages, 1)
		assert.Equal(t, "first", popped.FailedMessages[0].Message)
		assert.True(t, popped.HasFailed())
	})

	t.Run("status and bounds", func(t *testing.T) {
		a := newAdapter(t)
		pushAll(t, a, job("a"), job("b"))

		start, end, err := a.Bounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, start+1, end)

		status, err := a.Status(ctx, end)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusPending, status)

		_ = popIDs(t, a)
		status, err = a.Status(ctx, end)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusOpen, status)

		require.NoError(t, a.Bury(ctx, job("dead")))
		_, buriedAt, err := a.Bounds(ctx)
		require.NoError(t, err)
		assert.Greater(t, buriedAt, end)

		status, err = a.Status(ctx, buriedAt)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, status)

		low, _, err := a.Bounds(ctx)
		require.NoError(t, err)
		assert.Equal(t, buriedAt, low)
	})

	t.Run("failed store", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Bury(ctx, job("x")))
		_, first, err := a.Bounds(ctx)
		require.NoError(t, err)
		require.NoError(t, a.Bury(ctx, job("y")))

		has, err := a.HasFailedJobs(ctx)
		require.NoError(t, err)
		assert.True(t, has)

		ok, err := a.HasFailedJob(ctx, first)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.HasFailedJob(ctx, first+1000)
		require.NoError(t, err)
		assert.False(t, ok)

		fj, err := a.FailedJob(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "x", fj.ID)

		_, err = a.FailedJob(ctx, first+1000)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)

		data, err := a.FailedJobData(ctx, first)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"x"`)

		all, err := a.FailedJobs(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "x", all[0].ID)
		assert.Equal(t, "y", all[1].ID)

		require.NoError(t, a.ClearFailed(ctx))
		has, err = a.HasFailedJobs(ctx)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("clear keeps failed jobs", func(t *testing.T) {
		a := newAdapter(t)
		pushAll(t, a, job("a"), job("b"))
		require.NoError(t, a.Bury(ctx, job("dead")))

		require.NoError(t, a.Clear(ctx))
		has, err := a.HasJobs(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		hasFailed, err := a.HasFailedJobs(ctx)
		require.NoError(t, err)
		assert.True(t, hasFailed)
	})

	t.Run("concurrent pops hand out each job once", func(t *testing.T) {
		a := newAdapter(t)
		const total = 40
		for i := range total {
			require.NoError(t, a.Push(ctx, job(fmt.Sprintf("job-%02d", i))))
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]int)
			wg   sync.WaitGroup
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					j, err := a.Pop(ctx)
					if err != nil || j == nil {
						return
					}
					mu.Lock()
					seen[j.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, id)
		}
	})
}

// RunTaskAdapterSuite runs RunAdapterSuite and then checks the task store.
func RunTaskAdapterSuite(t *testing.T, newAdapter TaskFactory) {
	ctx := context.Background()

	RunAdapterSuite(t, func(t *testing.T) queue.Adapter { return newAdapter(t) })

	task := func(id, schedule string) *queue.Job {
		return queue.NewTask(cron.MustParse(schedule), queue.WithID(id), queue.WithShell("true"))
	}

	t.Run("schedule rejects plain jobs", func(t *testing.T) {
		a := newAdapter(t)
		assert.ErrorIs(t, a.Schedule(ctx, nil), queue.ErrJobNil)
		assert.ErrorIs(t, a.Schedule(ctx, job("plain")), queue.ErrNotTask)
	})

	t.Run("task store", func(t *testing.T) {
		a := newAdapter(t)

		has, err := a.HasTasks(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, a.Schedule(ctx, task("t1", "*/5 * * * *")))
		require.NoError(t, a.Schedule(ctx, task("t2", "*/10 * * * * *")))
		require.NoError(t, a.Schedule(ctx, task("t1", "*/5 * * * *")))

		ids, err := a.Tasks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, ids)

		n, err := a.TaskCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := a.Task(ctx, "t2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "*/10 * * * * *", got.Schedule.String())
		assert.True(t, got.Schedule.HasSeconds())

		missing, err := a.Task(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("update and remove", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Schedule(ctx, task("t1", "0 * * * *")))
		require.NoError(t, a.Schedule(ctx, task("t2", "0 * * * *")))

		got, err := a.Task(ctx, "t1")
		require.NoError(t, err)
		got.Complete()
		got.Fail("late")
		require.NoError(t, a.UpdateTask(ctx, got))

		updated, err := a.Task(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, uint(2), updated.Attempts)
		require.Len(t, updated.FailedMessages, 1)

		ids, err := a.Tasks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, ids)

		require.NoError(t, a.RemoveTask(ctx, "t1"))
		require.NoError(t, a.RemoveTask(ctx, "missing"))
		ids, err = a.Tasks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"t2"}, ids)

		require.NoError(t, a.ClearTasks(ctx))
		n, err := a.TaskCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
