package queue_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

func TestJobRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()

		res, err := queue.NewJob().Run(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("callable receives app and args", func(t *testing.T) {
		t.Parallel()

		app := queue.NewCommandTable()
		var gotApp queue.App
		fn := func(_ context.Context, a queue.App, args []any) (any, error) {
			gotApp = a
			return fmt.Sprint(args...), nil
		}
		j := queue.NewJob(queue.WithCallable("concat", fn, "a", "b"))

		res, err := j.Run(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, "ab", res)
		assert.Equal(t, "ab", j.Results)
		assert.Same(t, app, gotApp)
	})

	t.Run("callable error leaves results", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		j := queue.NewJob(queue.WithCallable("fail", func(context.Context, queue.App, []any) (any, error) {
			return nil, boom
		}))
		j.Results = "previous"

		_, err := j.Run(ctx, nil)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "previous", j.Results)
	})

	t.Run("unbound callable", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithCallable("missing", nil))
		_, err := j.Run(ctx, nil)
		assert.ErrorIs(t, err, queue.ErrNoCallable)
	})

	t.Run("command output becomes lines", func(t *testing.T) {
		t.Parallel()

		app := queue.NewCommandTable().Register("greet", func(_ context.Context, args []string, out io.Writer) error {
			for _, a := range args {
				fmt.Fprintf(out, "hello %s\n", a)
			}
			return nil
		})
		j := queue.NewJob(queue.WithCommand("greet", "ann", 7))

		res, err := j.Run(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello ann", "hello 7"}, res)
	})

	t.Run("command without app does nothing", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithCommand("greet"))
		res, err := j.Run(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("missing command route", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithCommand("nope"))
		res, err := j.Run(ctx, queue.NewCommandTable())
		assert.ErrorIs(t, err, queue.ErrNoCommandRoute)
		assert.Equal(t, false, res)
	})

	t.Run("shell output", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithShell("printf 'one\\ntwo\\n'"))
		res, err := j.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, res)
	})

	t.Run("shell failure", func(t *testing.T) {
		t.Parallel()

		j := queue.NewJob(queue.WithShell("echo broken >&2; exit 3"))
		_, err := j.Run(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("shell honours context", func(t *testing.T) {
		t.Parallel()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		j := queue.NewJob(queue.WithShell("sleep 5"))
		_, err := j.Run(cctx, nil)
		assert.Error(t, err)
	})
}

func TestCommandTable(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, []string, io.Writer) error { return nil }
	table := queue.NewCommandTable().Register("b", noop).Register("a", noop).Register("nil", nil)

	assert.Equal(t, []string{"a", "b"}, table.Names())
	_, ok := table.Command("a")
	assert.True(t, ok)
	_, ok = table.Command("nil")
	assert.False(t, ok)
}
