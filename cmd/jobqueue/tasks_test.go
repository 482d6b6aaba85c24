package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoadTasksFile(t *testing.T) {
	t.Parallel()

	defs, err := loadTasksFile("testdata/tasks.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	hb, err := defs[0].build()
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", hb.ID)
	assert.Equal(t, queue.WorkCommand, hb.Work.Kind)
	assert.Equal(t, "echo", hb.Work.Name)
	assert.Equal(t, []any{"alive"}, hb.Work.Args)
	assert.Equal(t, 59, hb.Buffer)
	assert.Nil(t, hb.RunUntil)

	cleanup, err := defs[1].build()
	require.NoError(t, err)
	assert.Equal(t, "maintenance", defs[1].Queue)
	assert.Equal(t, queue.WorkShell, cleanup.Work.Kind)
	assert.Equal(t, "*/15 * * * *", cleanup.Schedule.String())
	assert.Equal(t, uint(3), cleanup.MaxAttempts)
	require.NotNil(t, cleanup.RunUntil)
	assert.Equal(t, 2099, cleanup.RunUntil.Year())

	_, err = loadTasksFile("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseTasks_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"no name":   "tasks:\n  - schedule: '* * * * *'\n    shell: 'true'\n",
		"duplicate": "tasks:\n  - name: a\n  - name: a\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := parseTasks([]byte(doc))
			assert.ErrorIs(t, err, errInvalidTask)
		})
	}

	_, err := parseTasks([]byte("tasks: ["))
	assert.Error(t, err)
}

func TestTaskDef_BuildInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]taskDef{
		"both":          {Name: "x", Schedule: "* * * * *", Shell: "true", Command: "echo"},
		"nothing":       {Name: "x", Schedule: "* * * * *"},
		"bad schedule":  {Name: "x", Schedule: "every day", Shell: "true"},
		"bad run_until": {Name: "x", Schedule: "* * * * *", Shell: "true", RunUntil: "whenever"},
	}
	for name, def := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := def.build()
			assert.ErrorIs(t, err, errInvalidTask)
		})
	}

	_, err := taskDef{Name: "x", Schedule: "61 * * * *", Shell: "true"}.build()
	assert.ErrorIs(t, err, cron.ErrInvalidSchedule)
}

func TestRegisterTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := queue.NewWorker(queue.WithWorkerLogger(discard))
	for _, name := range []string{"default", "maintenance"} {
		q, err := queue.NewQueue(name, queue.NewMemoryAdapter(), queue.WithQueueLogger(discard))
		require.NoError(t, err)
		require.NoError(t, w.AddQueue(q))
	}

	defs, err := loadTasksFile("testdata/tasks.yaml")
	require.NoError(t, err)
	require.NoError(t, registerTasks(ctx, w, "default", defs))
	// registering again replaces instead of duplicating
	require.NoError(t, registerTasks(ctx, w, "default", defs))

	stats, err := w.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[0].Tasks)
	assert.Equal(t, 1, stats[1].Tasks)

	q, err := w.Queue("default")
	require.NoError(t, err)
	ta := q.Adapter().(queue.TaskAdapter)
	stored, err := ta.Task(ctx, "heartbeat")
	require.NoError(t, err)
	require.NotNil(t, stored)
	stored.Fail("exit status 1")
	stored.Fail("exit status 1")
	require.NoError(t, ta.UpdateTask(ctx, stored))

	require.NoError(t, registerTasks(ctx, w, "default", defs))
	reloaded, err := ta.Task(ctx, "heartbeat")
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, uint(2), reloaded.Attempts, "re-registering keeps the attempt history")
	assert.Len(t, reloaded.FailedMessages, 2)
	assert.True(t, reloaded.HasFailed())
	assert.Equal(t, 59, reloaded.Buffer)

	err = registerTasks(ctx, w, "nowhere", []taskDef{{Name: "x", Schedule: "* * * * *", Shell: "true"}})
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}
