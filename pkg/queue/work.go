package queue

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// WorkKind tags the variant held by a WorkUnit.
type WorkKind string

const (
	WorkNone     WorkKind = ""
	WorkCallable WorkKind = "callable"
	WorkCommand  WorkKind = "command"
	WorkShell    WorkKind = "shell"
)

// WorkUnit is what a job executes: a callable, a named App command or a
// shell command line. Exactly one variant is active, selected by Kind.
type WorkUnit struct {
	Kind  WorkKind `json:"kind,omitempty"`
	Name  string   `json:"name,omitempty"`
	Args  []any    `json:"args,omitempty"`
	Shell string   `json:"shell,omitempty"`

	fn CallableFunc
}

// Callable builds a work unit that invokes fn with args.
// name identifies fn in a Registry so the unit survives persistence.
func Callable(name string, fn CallableFunc, args ...any) WorkUnit {
	return WorkUnit{Kind: WorkCallable, Name: name, Args: args, fn: fn}
}

// Command builds a work unit that invokes an App command.
func Command(name string, args ...any) WorkUnit {
	return WorkUnit{Kind: WorkCommand, Name: name, Args: args}
}

// Shell builds a work unit that runs line with sh -c.
func Shell(line string) WorkUnit {
	return WorkUnit{Kind: WorkShell, Shell: line}
}

// IsZero reports whether no work is configured.
func (w WorkUnit) IsZero() bool {
	return w.Kind == WorkNone
}

// Bound reports whether a callable unit has its function attached.
func (w WorkUnit) Bound() bool {
	return w.fn != nil
}

func (w WorkUnit) clone() WorkUnit {
	w.Args = slices.Clone(w.Args)
	return w
}

// Run executes the work unit and stores the result in Results.
// With nothing configured it returns nil. A command unit with a nil app does
// nothing. A missing command route returns false with ErrNoCommandRoute.
func (j *Job) Run(ctx context.Context, app App) (any, error) {
	var (
		res any
		err error
	)

	switch j.Work.Kind {
	case WorkCallable:
		if j.Work.fn == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoCallable, j.Work.Name)
		}
		res, err = j.Work.fn(ctx, app, slices.Clone(j.Work.Args))
	case WorkCommand:
		if app == nil {
			return nil, nil
		}
		cmd, ok := app.Command(j.Work.Name)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrNoCommandRoute, j.Work.Name)
		}
		var out bytes.Buffer
		if err = cmd(ctx, stringArgs(j.Work.Args), &out); err == nil {
			res = splitLines(out.String())
		}
	case WorkShell:
		res, err = runShell(ctx, j.Work.Shell)
	default:
		return nil, nil
	}

	if err != nil {
		return nil, err
	}
	j.Results = res
	return res, nil
}

func runShell(ctx context.Context, line string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("shell command %q: %w: %s", line, err, strings.TrimSpace(string(out)))
	}
	return splitLines(string(out)), nil
}

func stringArgs(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, fmt.Sprint(a))
	}
	return out
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\r\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
