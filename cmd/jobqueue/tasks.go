package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

var errInvalidTask = errors.New("invalid task definition")

type tasksFile struct {
	Tasks []taskDef `yaml:"tasks"`
}

// taskDef is one entry of the tasks file. Name doubles as the task ID so a
// restart updates stored tasks instead of duplicating them.
type taskDef struct {
	Name        string   `yaml:"name"`
	Queue       string   `yaml:"queue"`
	Schedule    string   `yaml:"schedule"`
	Shell       string   `yaml:"shell"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	Buffer      int      `yaml:"buffer"`
	MaxAttempts uint     `yaml:"max_attempts"`
	RunUntil    string   `yaml:"run_until"`
}

func loadTasksFile(path string) ([]taskDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	return parseTasks(data)
}

func parseTasks(data []byte) ([]taskDef, error) {
	var f tasksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Tasks))
	for i, d := range f.Tasks {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", errInvalidTask, i)
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", errInvalidTask, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return f.Tasks, nil
}

func (d taskDef) build() (*queue.Job, error) {
	if d.Shell != "" && d.Command != "" {
		return nil, fmt.Errorf("%w: %s sets both shell and command", errInvalidTask, d.Name)
	}
	if d.Shell == "" && d.Command == "" {
		return nil, fmt.Errorf("%w: %s has nothing to run", errInvalidTask, d.Name)
	}
	expr, err := cron.Parse(d.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errInvalidTask, d.Name, err)
	}

	opts := []queue.JobOption{queue.WithID(d.Name), queue.WithBuffer(d.Buffer)}
	if d.MaxAttempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(d.MaxAttempts))
	}
	if d.Shell != "" {
		opts = append(opts, queue.WithShell(d.Shell))
	} else {
		args := make([]any, len(d.Args))
		for i, a := range d.Args {
			args[i] = a
		}
		opts = append(opts, queue.WithCommand(d.Command, args...))
	}

	task := queue.NewTask(expr, opts...)
	if d.RunUntil != "" {
		if err := task.SetRunUntil(d.RunUntil); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errInvalidTask, d.Name, err)
		}
	}
	return task, nil
}

// registerTasks stores every definition on its queue. A stored task with the
// same name takes the new definition but keeps its attempt history. Tasks the
// queue already removed as exhausted leave no record and start over.
// Entries without a queue go to fallback.
func registerTasks(ctx context.Context, w *queue.Worker, fallback string, defs []taskDef) error {
	for _, d := range defs {
		task, err := d.build()
		if err != nil {
			return err
		}
		name := d.Queue
		if name == "" {
			name = fallback
		}
		q, err := w.Queue(name)
		if err != nil {
			return fmt.Errorf("task %s: %w", d.Name, err)
		}
		ta, ok := q.Adapter().(queue.TaskAdapter)
		if !ok {
			return fmt.Errorf("task %s: queue %s: %w", d.Name, name, queue.ErrUnsupportedOperation)
		}
		existing, err := ta.Task(ctx, task.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			keepBookkeeping(task, existing)
			err = ta.UpdateTask(ctx, task)
		} else {
			err = q.AddTask(ctx, task)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// keepBookkeeping copies the execution history of stored onto task.
func keepBookkeeping(task, stored *queue.Job) {
	task.Attempts = stored.Attempts
	task.FailedMessages = stored.FailedMessages
	task.StartedAt = stored.StartedAt
	task.CompletedAt = stored.CompletedAt
	task.FailedAt = stored.FailedAt
	task.Results = stored.Results
	task.CreatedAt = stored.CreatedAt
}
