package queue_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

func newWorker(t *testing.T, names ...string) (*queue.Worker, map[string]*queue.Queue) {
	t.Helper()

	app := queue.NewCommandTable().Register("echo", func(_ context.Context, args []string, out io.Writer) error {
		_, err := fmt.Fprintln(out, args)
		return err
	})
	w := queue.NewWorker(
		queue.WithApp(app),
		queue.WithWorkerLogger(discard),
		queue.WithPullInterval(10*time.Millisecond),
	)
	queues := make(map[string]*queue.Queue)
	for _, name := range names {
		q, err := queue.NewQueue(name, queue.NewMemoryAdapter(), queue.WithQueueLogger(discard))
		require.NoError(t, err)
		require.NoError(t, w.AddQueue(q))
		queues[name] = q
	}
	return w, queues
}

func TestWorker_Queues(t *testing.T) {
	t.Parallel()

	w, queues := newWorker(t, "high", "low")
	assert.Equal(t, []string{"high", "low"}, w.Queues())

	err := w.AddQueue(queues["high"])
	assert.ErrorIs(t, err, queue.ErrQueueExists)
	require.NoError(t, w.AddQueue(nil))

	q, err := w.Queue("low")
	require.NoError(t, err)
	assert.Same(t, queues["low"], q)

	_, err = w.Queue("missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
	_, err = w.Work(context.Background(), "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
	_, err = w.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)

	id, hostname, pid := w.WorkerInfo()
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, hostname)
	assert.Positive(t, pid)
}

func TestWorker_Work(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, queues := newWorker(t, "a", "b", "c")
	require.NoError(t, queues["a"].AddJob(ctx, queue.NewJob(queue.WithID("ja"), queue.WithCommand("echo", "x"))))
	require.NoError(t, queues["b"].AddJob(ctx, queue.NewJob(queue.WithID("jb"))))

	job, err := w.Work(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ja", job.ID)
	assert.Equal(t, []string{"[x]"}, job.Results, "worker passes its app to jobs")

	require.NoError(t, queues["a"].AddJob(ctx, queue.NewJob(queue.WithID("ja2"))))
	jobs, err := w.WorkAll(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, "ja2", jobs["a"].ID)
	assert.Equal(t, "jb", jobs["b"].ID)
	assert.NotContains(t, jobs, "c")
}

func TestWorker_RunAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, queues := newWorker(t, "tasks")

	plain, err := queue.NewQueue("plain", jobsOnly{queue.NewMemoryAdapter()}, queue.WithQueueLogger(discard))
	require.NoError(t, err)
	require.NoError(t, w.AddQueue(plain))

	var calls atomic.Int32
	task := queue.NewTask(cron.EveryMinute(),
		queue.WithCallable("tick", counting(&calls, nil)),
		queue.WithBuffer(-1),
	)
	require.NoError(t, queues["tasks"].AddTask(ctx, task))

	single, err := w.Run(ctx, "tasks")
	require.NoError(t, err)
	assert.Contains(t, single, task.ID)

	results, err := w.RunAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, results, "tasks")
	assert.NotContains(t, results, "plain")
	assert.Contains(t, results["tasks"], task.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, queues := newWorker(t, "default")

	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)
	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), queue.ErrWorkerStarted)

	var calls atomic.Int32
	for range 5 {
		require.NoError(t, queues["default"].AddJob(ctx, queue.NewJob(queue.WithCallable("n", counting(&calls, nil)))))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	has, err := queues["default"].HasJobs(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWorker_RetriesOnLaterTicks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, queues := newWorker(t, "default")

	var calls atomic.Int32
	job := queue.NewJob(queue.WithCallable("flaky", counting(&calls, errors.New("flaky"))), queue.WithMaxAttempts(3))
	require.NoError(t, queues["default"].AddJob(ctx, job))

	require.NoError(t, w.Start(ctx))
	assert.Eventually(t, func() bool {
		failed, err := queues["default"].FailedJobs(ctx)
		return err == nil && len(failed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Equal(t, int32(3), calls.Load())
}

func TestWorker_Process(t *testing.T) {
	t.Parallel()

	w, queues := newWorker(t, "default")
	var calls atomic.Int32
	require.NoError(t, queues["default"].AddJob(context.Background(), queue.NewJob(queue.WithCallable("n", counting(&calls, nil)))))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(w.Process(gctx))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, g.Wait())
}

type unhealthy struct {
	queue.Adapter
}

func (unhealthy) Healthcheck(context.Context) error { return errors.New("down") }

func TestWorker_StatsAndHealth(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, queues := newWorker(t, "first", "second")
	require.NoError(t, queues["second"].AddJob(ctx, queue.NewJob()))

	stats, err := w.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "first", stats[0].Name)
	assert.False(t, stats[0].Pending)
	assert.Equal(t, "second", stats[1].Name)
	assert.True(t, stats[1].Pending)

	require.NoError(t, w.Healthcheck(ctx), "memory adapters have no health check")

	broken, err := queue.NewQueue("broken", unhealthy{queue.NewMemoryAdapter()}, queue.WithQueueLogger(discard))
	require.NoError(t, err)
	require.NoError(t, w.AddQueue(broken))
	err = w.Healthcheck(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue broken")
}

func TestWorker_RunAllQueuesShareTheMinute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	started := time.Now()
	// five clock seconds per real second: the sub-minute window below spans
	// more than one clock second
	clock := func() time.Time { return base.Add(time.Since(started) * 5) }

	w := queue.NewWorker(queue.WithWorkerLogger(discard))
	fast, err := queue.NewQueue("fast", queue.NewMemoryAdapter(),
		queue.WithQueueLogger(discard),
		queue.WithClock(clock),
		queue.WithTaskPollInterval(100*time.Millisecond),
		queue.WithTaskPollIterations(4),
	)
	require.NoError(t, err)
	slow, err := queue.NewQueue("slow", queue.NewMemoryAdapter(),
		queue.WithQueueLogger(discard),
		queue.WithClock(clock),
	)
	require.NoError(t, err)
	require.NoError(t, w.AddQueue(fast))
	require.NoError(t, w.AddQueue(slow))

	var secondly, minutely atomic.Int32
	require.NoError(t, fast.AddTask(ctx, queue.NewTask(cron.EverySecond(), queue.WithCallable("s", counting(&secondly, nil)))))
	require.NoError(t, slow.AddTask(ctx, queue.NewTask(cron.EveryMinute(), queue.WithCallable("m", counting(&minutely, nil)))))

	results, err := w.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), secondly.Load())
	assert.Equal(t, int32(1), minutely.Load(), "minute task of a later queue still fires at second 0")
	assert.Len(t, results["fast"], 1)
	assert.Len(t, results["slow"], 1)
}

func TestWorker_FailedJobDoesNotBlockQueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := queue.NewWorker(queue.WithWorkerLogger(discard), queue.WithPullInterval(300*time.Millisecond))
	q, err := queue.NewQueue("default", queue.NewMemoryAdapter(), queue.WithQueueLogger(discard))
	require.NoError(t, err)
	require.NoError(t, w.AddQueue(q))

	var failing, ok atomic.Int32
	require.NoError(t, q.AddJob(ctx, queue.NewJob(
		queue.WithCallable("broken", counting(&failing, errors.New("boom"))),
		queue.WithMaxAttempts(5),
	)))
	for range 3 {
		require.NoError(t, q.AddJob(ctx, queue.NewJob(queue.WithCallable("fine", counting(&ok, nil)))))
	}

	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	// one pull tick fits in the window
	assert.Eventually(t, func() bool { return ok.Load() == 3 }, 450*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, int32(1), failing.Load(), "the retry waits for the next tick")
}
