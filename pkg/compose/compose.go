// Package compose runs an ordered list of middleware against a context that
// grows as the middleware contribute to it.
//
// A pipeline is declared with a Builder and frozen with Build:
//
//	p := compose.New().
//		Use(loadConfig).
//		Parallel(fetchMember, fetchChannel).
//		Build()
//
//	ran, err := p.Run(ctx, compose.Fragment{"user": u}, func(ctx context.Context, c compose.Context) error {
//		cfg := configKey.MustGet(c)
//		...
//	})
//
// Each middleware receives a read-only snapshot and may return a Fragment,
// which is merged into the context seen by later steps, or ErrHalt, which
// stops the pipeline before the terminal runner without reporting an error.
package compose

import (
	"context"
	"errors"
	"fmt"
)

// ErrHalt is returned by a middleware to stop the pipeline. The terminal runner
// is not invoked and Run reports no error.
var ErrHalt = errors.New("compose: halt")

// Fragment is a set of context values contributed by one middleware.
type Fragment map[string]any

// Middleware inspects the context and optionally contributes to it.
type Middleware func(ctx context.Context, c Context) (Fragment, error)

// Terminal runs once every middleware has passed.
type Terminal func(ctx context.Context, c Context) error

// Context is an immutable view of the values accumulated during one run.
type Context struct {
	values map[string]any
}

// Value returns the raw value stored under key.
func (c Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key is present.
func (c Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Len returns the number of values held.
func (c Context) Len() int { return len(c.values) }

// with returns a new Context holding c's values overlaid with f.
func (c Context) with(fragments ...Fragment) Context {
	n := len(c.values)
	for _, f := range fragments {
		n += len(f)
	}
	values := make(map[string]any, n)
	for k, v := range c.values {
		values[k] = v
	}
	for _, f := range fragments {
		for k, v := range f {
			values[k] = v
		}
	}
	return Context{values: values}
}

// NewContext builds a Context from an initial fragment.
func NewContext(initial Fragment) Context {
	return Context{}.with(initial)
}

// Key is a typed handle on one context value.
type Key[T any] struct {
	name string
}

// NewKey declares a context key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string form.
func (k Key[T]) Name() string { return k.name }

// Set returns a fragment holding v under k.
func (k Key[T]) Set(v T) Fragment {
	return Fragment{k.name: v}
}

// Get returns the value stored under k, if any.
func (k Key[T]) Get(c Context) (T, bool) {
	v, ok := c.values[k.name]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// MustGet is Get for values a previous step guarantees. It panics when the
// value is missing, which the command and event wrappers report as a failed run.
func (k Key[T]) MustGet(c Context) T {
	v, ok := k.Get(c)
	if !ok {
		panic(fmt.Sprintf("compose: context value %q missing", k.name))
	}
	return v
}

// Merge combines fragments into one. Later fragments win on key collisions.
func Merge(fragments ...Fragment) Fragment {
	out := Fragment{}
	for _, f := range fragments {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}
