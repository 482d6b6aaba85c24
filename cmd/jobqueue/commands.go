package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// builtinCommands is the App every job of the daemon runs against.
func builtinCommands() *queue.CommandTable {
	return queue.NewCommandTable().
		Register("echo", func(_ context.Context, args []string, out io.Writer) error {
			_, err := fmt.Fprintln(out, strings.Join(args, " "))
			return err
		}).
		Register("sleep", func(ctx context.Context, args []string, _ io.Writer) error {
			if len(args) != 1 {
				return fmt.Errorf("sleep: want 1 argument, got %d", len(args))
			}
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("sleep: %w", err)
			}
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		})
}
