package queue_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/logger"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// jobsOnly hides the task store of the wrapped adapter.
type jobsOnly struct {
	queue.Adapter
}

// MockAdapter overrides Pop of an embedded in-memory adapter
type MockAdapter struct {
	mock.Mock
	queue.Adapter
}

func (m *MockAdapter) Pop(ctx context.Context) (*queue.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Job), args.Error(1)
}

func newQueue(t *testing.T, adapter queue.Adapter, opts ...queue.QueueOption) *queue.Queue {
	t.Helper()
	opts = append([]queue.QueueOption{queue.WithQueueLogger(discard)}, opts...)
	q, err := queue.NewQueue("test", adapter, opts...)
	require.NoError(t, err)
	return q
}

func counting(counter *atomic.Int32, err error) queue.CallableFunc {
	return func(context.Context, queue.App, []any) (any, error) {
		counter.Add(1)
		return "done", err
	}
}

func TestNewQueue(t *testing.T) {
	t.Parallel()

	_, err := queue.NewQueue("x", nil)
	assert.ErrorIs(t, err, queue.ErrAdapterNil)

	q, err := queue.NewQueue("", queue.NewMemoryAdapter(), queue.WithPriority(queue.LIFO))
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultQueueName, q.Name())
	assert.True(t, q.IsFILO())
	assert.True(t, q.Adapter().IsFILO())
	assert.True(t, q.SupportsTasks())

	q.SetPriority(queue.FIFO)
	assert.True(t, q.IsFIFO())
	assert.Equal(t, queue.FIFO, q.Priority())
}

func TestQueue_AddJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newQueue(t, queue.NewMemoryAdapter())

	assert.ErrorIs(t, q.AddJob(ctx, nil), queue.ErrJobNil)

	job := queue.NewJob(queue.WithMaxAttempts(1))
	require.NoError(t, q.AddJob(ctx, job, queue.WithAttempts(7)))
	assert.Equal(t, uint(7), job.MaxAttempts)

	popped, err := q.Adapter().Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(7), popped.MaxAttempts)
}

func TestQueue_AddTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	task := queue.NewTask(cron.EveryMinute())

	q := newQueue(t, queue.NewMemoryAdapter())
	assert.ErrorIs(t, q.AddTask(ctx, nil), queue.ErrJobNil)
	assert.ErrorIs(t, q.AddTask(ctx, queue.NewJob()), queue.ErrNotTask)
	assert.ErrorIs(t, q.AddTask(ctx, queue.NewTask(cron.New().Hours("1 2"))), cron.ErrInvalidSchedule)
	require.NoError(t, q.AddTask(ctx, task))

	plain := newQueue(t, jobsOnly{queue.NewMemoryAdapter()})
	assert.False(t, plain.SupportsTasks())
	assert.ErrorIs(t, plain.AddTask(ctx, task), queue.ErrUnsupportedOperation)
	assert.ErrorIs(t, plain.ClearTasks(ctx), queue.ErrUnsupportedOperation)
	_, err := plain.Run(ctx, nil)
	assert.ErrorIs(t, err, queue.ErrUnsupportedOperation)
}

func TestQueue_Work(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		job, err := newQueue(t, queue.NewMemoryAdapter()).Work(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("success completes the job", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter())
		require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithCallable("ok", counting(&calls, nil)))))

		job, err := q.Work(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.NotNil(t, job.StartedAt)
		assert.NotNil(t, job.CompletedAt)
		assert.Equal(t, uint(1), job.Attempts)
		assert.Equal(t, "done", job.Results)
		assert.Equal(t, int32(1), calls.Load())

		has, err := q.HasJobs(ctx)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("failure requeues until attempts are exhausted", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter())
		job := queue.NewJob(queue.WithCallable("fail", counting(&calls, errors.New("boom"))))
		require.NoError(t, q.AddJob(ctx, job, queue.WithAttempts(2)))

		for attempt := uint(1); attempt <= 2; attempt++ {
			got, err := q.Work(ctx, nil)
			require.NoError(t, err)
			assert.True(t, got.HasFailed())
			assert.Equal(t, attempt, got.Attempts)
			assert.Len(t, got.FailedMessages, int(attempt))
			assert.Equal(t, "boom", got.FailedMessages[attempt-1].Message)
		}

		// the exhausted job is popped once more and buried without running
		got, err := q.Work(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int32(2), calls.Load())

		has, err := q.HasJobs(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		failed, err := q.FailedJobs(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, job.ID, failed[0].ID)

		require.NoError(t, q.ClearFailed(ctx))
		failed, err = q.FailedJobs(ctx)
		require.NoError(t, err)
		assert.Empty(t, failed)
	})

	t.Run("expired job is buried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter())
		require.NoError(t, q.AddJob(ctx, queue.NewJob(
			queue.WithCallable("late", counting(&calls, nil)),
			queue.WithRunUntil(time.Now().Add(-time.Second)),
		)))

		job, err := q.Work(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Nil(t, job.StartedAt)
		assert.Zero(t, calls.Load())

		failed, err := q.FailedJobs(ctx)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})

	t.Run("panic is a failure", func(t *testing.T) {
		t.Parallel()

		q := newQueue(t, queue.NewMemoryAdapter())
		require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithCallable("panic", func(context.Context, queue.App, []any) (any, error) {
			panic("kaboom")
		}))))

		job, err := q.Work(ctx, nil)
		require.NoError(t, err)
		assert.True(t, job.HasFailed())
		require.Len(t, job.FailedMessages, 1)
		assert.Contains(t, job.FailedMessages[0].Message, "kaboom")

		has, err := q.HasJobs(ctx)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("missing command route completes with false", func(t *testing.T) {
		t.Parallel()

		q := newQueue(t, queue.NewMemoryAdapter())
		require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithCommand("unknown"))))

		job, err := q.Work(ctx, queue.NewCommandTable())
		require.NoError(t, err)
		assert.False(t, job.HasFailed())
		assert.NotNil(t, job.CompletedAt)
		assert.Equal(t, false, job.Results)
	})

	t.Run("filo retries failed jobs last", func(t *testing.T) {
		t.Parallel()

		q := newQueue(t, queue.NewMemoryAdapter(), queue.WithPriority(queue.FILO))
		boom := errors.New("boom")
		var calls atomic.Int32
		failing := queue.NewJob(queue.WithID("failing"), queue.WithCallable("f", counting(&calls, boom)))
		require.NoError(t, q.AddJob(ctx, failing))

		_, err := q.Work(ctx, nil)
		require.NoError(t, err)

		require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithID("fresh"))))
		next, err := q.Work(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, "fresh", next.ID)
	})

	t.Run("adapter errors propagate", func(t *testing.T) {
		t.Parallel()

		storageErr := errors.New("storage down")
		adapter := &MockAdapter{Adapter: queue.NewMemoryAdapter()}
		adapter.On("Pop", mock.Anything).Return(nil, storageErr)

		job, err := newQueue(t, adapter).Work(ctx, nil)
		assert.ErrorIs(t, err, storageErr)
		assert.Nil(t, job)
		adapter.AssertExpectations(t)
	})
}

func TestQueue_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	onMinute := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	offMinute := onMinute.Add(30 * time.Second)
	fixed := func(t time.Time) func() time.Time { return func() time.Time { return t } }

	t.Run("minute task due", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		adapter := queue.NewMemoryAdapter()
		q := newQueue(t, adapter, queue.WithClock(fixed(onMinute)))
		task := queue.NewTask(cron.EveryMinute(), queue.WithCallable("tick", counting(&calls, nil)))
		require.NoError(t, q.AddTask(ctx, task))

		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		require.Contains(t, executed, task.ID)
		assert.NotNil(t, executed[task.ID].CompletedAt)
		assert.Equal(t, int32(1), calls.Load())

		stored, err := adapter.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(1), stored.Attempts)
	})

	t.Run("minute task off minute", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter(), queue.WithClock(fixed(offMinute)))
		task := queue.NewTask(cron.EveryMinute(), queue.WithCallable("tick", counting(&calls, nil)))
		require.NoError(t, q.AddTask(ctx, task))

		assert.False(t, task.IsDue(offMinute))
		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, executed)
		assert.Zero(t, calls.Load())
	})

	t.Run("every second task fires within the window", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		adapter := queue.NewMemoryAdapter()
		q := newQueue(t, adapter,
			queue.WithTaskPollInterval(10*time.Millisecond),
			queue.WithTaskPollIterations(3),
		)
		task := queue.NewTask(cron.EverySecond(), queue.WithCallable("tick", counting(&calls, nil)))
		require.NoError(t, q.AddTask(ctx, task))

		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		require.Contains(t, executed, task.ID)
		assert.NotNil(t, executed[task.ID].CompletedAt)
		assert.Equal(t, int32(3), calls.Load())

		stored, err := adapter.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, uint(3), stored.Attempts)
	})

	t.Run("sub-minute tasks poll concurrently", func(t *testing.T) {
		t.Parallel()

		var a, b atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter(),
			queue.WithTaskPollInterval(100*time.Millisecond),
			queue.WithTaskPollIterations(3),
		)
		require.NoError(t, q.AddTask(ctx, queue.NewTask(cron.EverySecond(), queue.WithCallable("a", counting(&a, nil)))))
		require.NoError(t, q.AddTask(ctx, queue.NewTask(cron.EverySecond(), queue.WithCallable("b", counting(&b, nil)))))

		start := time.Now()
		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, executed, 2)
		assert.Equal(t, int32(3), a.Load())
		assert.Equal(t, int32(3), b.Load())
		// sequential windows would take at least 400ms
		assert.Less(t, time.Since(start), 390*time.Millisecond)
	})

	t.Run("exhausted task is removed", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		adapter := queue.NewMemoryAdapter()
		q := newQueue(t, adapter,
			queue.WithTaskPollInterval(10*time.Millisecond),
			queue.WithTaskPollIterations(5),
		)
		task := queue.NewTask(cron.EverySecond(),
			queue.WithCallable("once", counting(&calls, nil)),
			queue.WithMaxAttempts(1),
		)
		require.NoError(t, q.AddTask(ctx, task))

		_, err := q.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())

		has, err := adapter.HasTasks(ctx)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("failing task is kept while valid", func(t *testing.T) {
		t.Parallel()

		adapter := queue.NewMemoryAdapter()
		q := newQueue(t, adapter, queue.WithClock(fixed(onMinute)))
		var calls atomic.Int32
		task := queue.NewTask(cron.EveryMinute(),
			queue.WithCallable("bad", counting(&calls, errors.New("nope"))),
			queue.WithMaxAttempts(3),
		)
		require.NoError(t, q.AddTask(ctx, task))

		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		assert.True(t, executed[task.ID].HasFailed())

		stored, err := adapter.Task(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, uint(1), stored.Attempts)
		assert.Equal(t, "nope", stored.FailedMessages[0].Message)
	})

	t.Run("invalid task is removed without running", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		adapter := queue.NewMemoryAdapter()
		q := newQueue(t, adapter, queue.WithClock(fixed(onMinute)))
		task := queue.NewTask(cron.EveryMinute(),
			queue.WithCallable("expired", counting(&calls, nil)),
			queue.WithRunUntil(time.Now().Add(-time.Hour)),
		)
		require.NoError(t, q.AddTask(ctx, task))

		executed, err := q.Run(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, executed)
		assert.Zero(t, calls.Load())

		n, err := adapter.TaskCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("cancellation ends the window", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		q := newQueue(t, queue.NewMemoryAdapter(),
			queue.WithTaskPollInterval(20*time.Millisecond),
			queue.WithTaskPollIterations(1000),
		)
		require.NoError(t, q.AddTask(ctx, queue.NewTask(cron.EverySecond(), queue.WithCallable("tick", counting(&calls, nil)))))

		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		executed, err := q.Run(cctx, nil)
		require.NoError(t, err)
		assert.Len(t, executed, 1)
		assert.GreaterOrEqual(t, calls.Load(), int32(1))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestQueue_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newQueue(t, queue.NewMemoryAdapter())
	require.NoError(t, q.AddJob(ctx, queue.NewJob()))
	require.NoError(t, q.AddJob(ctx, queue.NewJob()))
	require.NoError(t, q.Adapter().Bury(ctx, queue.NewJob()))
	require.NoError(t, q.AddTask(ctx, queue.NewTask(cron.Hourly())))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, "fifo", stats.Priority)
	assert.Equal(t, int64(1), stats.Start)
	assert.Equal(t, int64(3), stats.End)
	assert.True(t, stats.Pending)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Tasks)

	require.NoError(t, q.Clear(ctx))
	require.NoError(t, q.ClearTasks(ctx))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Pending)
	assert.Zero(t, stats.Tasks)
}

func TestQueue_WorkCarriesJobScope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newQueue(t, queue.NewMemoryAdapter())

	var gotQueue, gotID string
	fn := func(ctx context.Context, _ queue.App, _ []any) (any, error) {
		gotQueue, gotID, _ = logger.JobFromContext(ctx)
		return nil, nil
	}
	require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithID("scoped"), queue.WithCallable("scope", fn))))

	_, err := q.Work(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", gotQueue)
	assert.Equal(t, "scoped", gotID)
}
