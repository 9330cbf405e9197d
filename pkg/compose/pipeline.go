package compose

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// step is one position in a pipeline: a single middleware or a parallel group.
type step struct {
	group []Middleware
}

// Builder accumulates middleware. It is not safe for concurrent use; build the
// pipeline once at declaration time.
type Builder struct {
	steps []step
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Use appends a sequential step.
func (b *Builder) Use(mw Middleware) *Builder {
	b.steps = append(b.steps, step{group: []Middleware{mw}})
	return b
}

// Parallel appends a step that runs mws concurrently against the same snapshot.
// Their fragments are merged once all of them return; they must not write the
// same keys.
func (b *Builder) Parallel(mws ...Middleware) *Builder {
	if len(mws) == 0 {
		return b
	}
	group := make([]Middleware, len(mws))
	copy(group, mws)
	b.steps = append(b.steps, step{group: group})
	return b
}

// Append copies every step of p to the end of b.
func (b *Builder) Append(p *Pipeline) *Builder {
	if p != nil {
		b.steps = append(b.steps, p.steps...)
	}
	return b
}

// Build freezes the declared steps into a Pipeline. Later changes to b do not
// affect the returned value.
func (b *Builder) Build() *Pipeline {
	steps := make([]step, len(b.steps))
	copy(steps, b.steps)
	return &Pipeline{steps: steps}
}

// Pipeline is an immutable sequence of middleware steps.
type Pipeline struct {
	steps []step
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Run executes the pipeline starting from a copy of initial. It reports whether
// the terminal runner was reached. Middleware and terminal errors are returned
// unchanged; ErrHalt is swallowed.
func (p *Pipeline) Run(ctx context.Context, initial Fragment, terminal Terminal) (bool, error) {
	c, err := p.Compose(ctx, initial)
	if err != nil {
		if errors.Is(err, ErrHalt) {
			return false, nil
		}
		return false, err
	}
	if terminal == nil {
		return true, nil
	}
	return true, terminal(ctx, c)
}

// Compose runs the middleware only and returns the final context. A halted
// pipeline returns ErrHalt.
func (p *Pipeline) Compose(ctx context.Context, initial Fragment) (Context, error) {
	c := NewContext(initial)
	if p == nil {
		return c, nil
	}

	for _, s := range p.steps {
		var (
			fragments []Fragment
			err       error
		)
		if len(s.group) == 1 {
			var f Fragment
			f, err = s.group[0](ctx, c)
			fragments = []Fragment{f}
		} else {
			fragments, err = runGroup(ctx, c, s.group)
		}
		if err != nil {
			return c, err
		}
		c = c.with(fragments...)
	}

	return c, nil
}

// runGroup waits for every middleware of a parallel step. A real error wins
// over a halt; a halt from any member halts the group.
func runGroup(ctx context.Context, c Context, group []Middleware) ([]Fragment, error) {
	fragments := make([]Fragment, len(group))
	halted := make([]bool, len(group))

	var g errgroup.Group
	for i, mw := range group {
		g.Go(func() error {
			f, err := mw(ctx, c)
			if errors.Is(err, ErrHalt) {
				halted[i] = true
				return nil
			}
			if err != nil {
				return err
			}
			fragments[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, h := range halted {
		if h {
			return nil, ErrHalt
		}
	}
	return fragments, nil
}
