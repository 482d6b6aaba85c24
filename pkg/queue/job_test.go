package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

func TestNewJob(t *testing.T) {
	t.Parallel()

	t.Run("generates unique ids", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]bool)
		for range 100 {
			j := queue.NewJob()
			assert.Len(t, j.ID, 32)
			assert.False(t, seen[j.ID])
			seen[j.ID] = true
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		until := time.Now().Add(time.Hour)
		j := queue.NewJob(
			queue.WithID("job-1"),
			queue.WithMaxAttempts(3),
			queue.WithRunUntil(until),
			queue.WithCommand("reports:send", "daily"),
			queue.WithArgs("--force"),
		)
		assert.Equal(t, "job-1", j.ID)
		assert.Equal(t, uint(3), j.MaxAttempts)
		assert.Equal(t, until, *j.RunUntil)
		assert.Equal(t, queue.WorkCommand, j.Work.Kind)
		assert.Equal(t, []any{"daily", "--force"}, j.Work.Args)
		assert.False(t, j.IsTask())
		assert.False(t, j.CreatedAt.IsZero())
	})

	t.Run("last work unit wins", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithCommand("a"), queue.WithShell("echo hi"))
		assert.Equal(t, queue.WorkShell, j.Work.Kind)
		assert.Equal(t, "echo hi", j.Work.Shell)
		assert.Empty(t, j.Work.Name)
	})

	t.Run("task", func(t *testing.T) {
		t.Parallel()

		task := queue.NewTask(cron.EveryMinute(), queue.WithBuffer(5))
		assert.True(t, task.IsTask())
		assert.Equal(t, 5, task.Buffer)

		var empty cron.Expression
		assert.False(t, queue.NewTask(&empty).IsTask())
		assert.False(t, queue.NewTask(nil).IsTask())
	})
}

func TestJobAttempts(t *testing.T) {
	t.Parallel()

	for _, n := range []uint{1, 2, 5} {
		for _, fail := range []bool{true, false} {
			j := queue.NewJob(queue.WithMaxAttempts(n))
			for i := uint(0); i < n; i++ {
				assert.True(t, j.IsValid())
				assert.False(t, j.HasExceededMaxAttempts())
				if fail {
					j.Fail("err")
				} else {
					j.Complete()
				}
			}
			assert.Equal(t, n, j.Attempts)
			assert.True(t, j.HasExceededMaxAttempts())
			assert.False(t, j.IsValid())
		}
	}

	t.Run("unlimited", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob()
		for range 10 {
			j.Fail("")
		}
		assert.Equal(t, uint(10), j.Attempts)
		assert.True(t, j.IsValid())
		assert.Empty(t, j.FailedMessages)
	})
}

func TestJobExpiry(t *testing.T) {
	t.Parallel()

	past := queue.NewJob(queue.WithRunUntil(time.Now().Add(-time.Minute)))
	assert.True(t, past.IsExpired())
	assert.False(t, past.IsValid())

	future := queue.NewJob(queue.WithRunFor(time.Hour))
	assert.False(t, future.IsExpired())
	assert.True(t, future.IsValid())

	never := queue.NewJob()
	assert.False(t, never.IsExpired())
}

func TestJobSetRunUntil(t *testing.T) {
	t.Parallel()

	t.Run("duration", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob()
		require.NoError(t, j.SetRunUntil("+90m"))
		assert.WithinDuration(t, time.Now().Add(90*time.Minute), *j.RunUntil, 5*time.Second)

		require.NoError(t, j.SetRunUntil("2h"))
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), *j.RunUntil, 5*time.Second)
	})

	t.Run("date", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob()
		require.NoError(t, j.SetRunUntil("2020-01-02 03:04:05"))
		assert.Equal(t, 2020, j.RunUntil.Year())
		assert.Equal(t, time.January, j.RunUntil.Month())
		assert.True(t, j.IsExpired())
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob()
		assert.ErrorIs(t, j.SetRunUntil("someday"), queue.ErrInvalidTime)
		assert.ErrorIs(t, j.SetRunUntil(" "), queue.ErrInvalidTime)
		assert.Nil(t, j.RunUntil)
	})
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	j := queue.NewJob()
	assert.False(t, j.HasFailed())

	j.Start()
	require.NotNil(t, j.StartedAt)

	j.Fail("first")
	assert.True(t, j.HasFailed())
	require.Len(t, j.FailedMessages, 1)
	assert.Equal(t, "first", j.FailedMessages[0].Message)
	assert.Equal(t, *j.FailedAt, j.FailedMessages[0].At)

	time.Sleep(time.Millisecond)
	j.Complete()
	assert.False(t, j.HasFailed(), "a later completion clears the failed state")
	assert.Equal(t, uint(2), j.Attempts)

	time.Sleep(time.Millisecond)
	j.Fail("second")
	assert.True(t, j.HasFailed())
	assert.Len(t, j.FailedMessages, 2)
}

func TestJobIsDue(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 6, 10, 0, 3, 0, time.UTC)

	task := queue.NewTask(cron.EveryMinute())
	assert.False(t, task.IsDue(at), "buffer 0 only matches second 0")
	assert.True(t, task.IsDueWithBuffer(at, 5))

	buffered := queue.NewTask(cron.EveryMinute(), queue.WithBuffer(10))
	assert.True(t, buffered.IsDue(at))

	plain := queue.NewJob()
	assert.False(t, plain.IsDue(at))
}

func TestJobClone(t *testing.T) {
	t.Parallel()

	j := queue.NewTask(cron.DailyAt(1, 0), queue.WithShell("true"), queue.WithArgs("a"))
	j.Fail("x")

	c := j.Clone()
	c.Attempts = 99
	c.Work.Args[0] = "b"
	c.FailedMessages[0].Message = "y"
	*c.FailedAt = time.Time{}
	c.Schedule.Hours("5")

	assert.Equal(t, uint(1), j.Attempts)
	assert.Equal(t, "a", j.Work.Args[0])
	assert.Equal(t, "x", j.FailedMessages[0].Message)
	assert.False(t, j.FailedAt.IsZero())
	assert.Equal(t, "0 1 * * *", j.Schedule.String())

	var nilJob *queue.Job
	assert.Nil(t, nilJob.Clone())
}
