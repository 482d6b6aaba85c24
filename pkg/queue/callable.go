package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

type (
	// CallableFunc is the function behind a callable work unit.
	CallableFunc func(ctx context.Context, app App, args []any) (any, error)

	// TypedCallableFunc receives the first job argument decoded into T.
	TypedCallableFunc[T any] func(ctx context.Context, app App, payload T) (any, error)
)

// TypedCallable adapts fn to a CallableFunc. The first argument is
// round-tripped through JSON into T, so it works for values restored from
// storage as well as for values set in process.
func TypedCallable[T any](fn TypedCallableFunc[T]) CallableFunc {
	return func(ctx context.Context, app App, args []any) (any, error) {
		var payload T
		if len(args) > 0 {
			raw, err := json.Marshal(args[0])
			if err != nil {
				return nil, errors.Join(ErrCodec, err)
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, errors.Join(ErrCodec, err)
			}
		}
		return fn(ctx, app, payload)
	}
}

// Registry maps callable names to functions so that decoded jobs can be
// rebound to code.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]CallableFunc
}

// DefaultRegistry is used by codecs created without an explicit registry.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]CallableFunc)}
}

// Register adds or replaces a callable.
func (r *Registry) Register(name string, fn CallableFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: name and function are required", ErrNoCallable)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
	return nil
}

func (r *Registry) Lookup(name string) (CallableFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bind attaches the registered function to an unbound callable job.
// Jobs of any other kind are left alone.
func (r *Registry) Bind(j *Job) {
	if j == nil || j.Work.Kind != WorkCallable || j.Work.fn != nil {
		return
	}
	if fn, ok := r.Lookup(j.Work.Name); ok {
		j.Work.fn = fn
	}
}

// RegisterCallable registers fn on DefaultRegistry.
func RegisterCallable(name string, fn CallableFunc) error {
	return DefaultRegistry.Register(name, fn)
}

// RegisterTyped registers fn on r under the qualified name of T (pointer
// stars dropped) and returns that name.
func RegisterTyped[T any](r *Registry, fn TypedCallableFunc[T]) (string, error) {
	name := strings.TrimLeft(reflect.TypeFor[T]().String(), "*")
	if err := r.Register(name, TypedCallable(fn)); err != nil {
		return "", err
	}
	return name, nil
}
