package queue

import (
	"context"
	"io"
	"slices"
	"sync"
)

// CommandFunc is a named command of an App. Output written to out becomes
// the job result, one element per line.
type CommandFunc func(ctx context.Context, args []string, out io.Writer) error

// App is the execution context passed to every job a Worker runs.
type App interface {
	Command(name string) (CommandFunc, bool)
}

// CommandTable is a concurrency-safe App backed by a route map.
type CommandTable struct {
	mu     sync.RWMutex
	routes map[string]CommandFunc
}

func NewCommandTable() *CommandTable {
	return &CommandTable{routes: make(map[string]CommandFunc)}
}

// Register adds or replaces a command route. A nil fn is ignored.
func (t *CommandTable) Register(name string, fn CommandFunc) *CommandTable {
	if fn == nil {
		return t
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = fn
	return t
}

func (t *CommandTable) Command(name string) (CommandFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.routes[name]
	return fn, ok
}

// Names returns the registered command names in sorted order.
func (t *CommandTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.routes))
	for name := range t.routes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
