// Package event binds gateway events to middleware pipelines.
//
// E is the discordgo event type the handler receives, for example
// *discordgo.GuildMemberAdd. Bound handlers start from a context holding the
// session and the event payload.
package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/pkg/compose"
)

// ErrNoRunner is returned when an event is built without a runner.
var ErrNoRunner = errors.New("event runner not implemented")

// SessionKey holds the session the event arrived on.
var SessionKey = compose.NewKey[*discordgo.Session]("session")

const payloadKey = "event"

// Payload returns the triggering event from a pipeline context.
func Payload[E any](c compose.Context) E {
	return compose.NewKey[E](payloadKey).MustGet(c)
}

// Binder registers gateway handlers. *discordgo.Session implements it.
type Binder interface {
	AddHandler(handler interface{}) func()
	AddHandlerOnce(handler interface{}) func()
}

// Binding is the type-erased view of an Event used by registries.
type Binding interface {
	Name() string
	Once() bool
	Bind(ctx context.Context, b Binder) func()
}

// Builder accumulates the steps of an event binding.
type Builder[E any] struct {
	name       string
	once       bool
	middleware *compose.Builder
	run        compose.Terminal
}

// New starts an event binding for the named event.
func New[E any](name string) *Builder[E] {
	return &Builder[E]{name: name, middleware: compose.New()}
}

// Once makes the binding fire for the first occurrence only.
func (b *Builder[E]) Once() *Builder[E] {
	b.once = true
	return b
}

// Use appends a middleware step.
func (b *Builder[E]) Use(mw compose.Middleware) *Builder[E] {
	b.middleware.Use(mw)
	return b
}

// Parallel appends a step running mws concurrently.
func (b *Builder[E]) Parallel(mws ...compose.Middleware) *Builder[E] {
	b.middleware.Parallel(mws...)
	return b
}

// Run sets the terminal runner.
func (b *Builder[E]) Run(fn compose.Terminal) *Builder[E] {
	b.run = fn
	return b
}

// Build freezes the binding. An event without a runner is an error.
func (b *Builder[E]) Build() (*Event[E], error) {
	if b.run == nil {
		return nil, fmt.Errorf("%s: %w", b.name, ErrNoRunner)
	}
	return &Event[E]{
		name:     b.name,
		once:     b.once,
		pipeline: b.middleware.Build(),
		run:      b.run,
	}, nil
}

// MustBuild is Build for package-level declarations.
func (b *Builder[E]) MustBuild() *Event[E] {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Event is a frozen event binding.
type Event[E any] struct {
	name     string
	once     bool
	pipeline *compose.Pipeline
	run      compose.Terminal
}

func (e *Event[E]) Name() string { return e.name }
func (e *Event[E]) Once() bool   { return e.once }

// Handle runs the pipeline for one occurrence. Failures are logged with the
// event name and swallowed.
func (e *Event[E]) Handle(ctx context.Context, s *discordgo.Session, payload E) (ran bool) {
	log := zerolog.Ctx(ctx).With().Str("event", e.name).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Event panicked")
		}
	}()

	base := compose.Merge(SessionKey.Set(s), compose.NewKey[E](payloadKey).Set(payload))
	ran, err := e.pipeline.Run(ctx, base, e.run)
	if err != nil {
		log.Error().Err(err).Msg("Event failed")
	}
	return ran
}

// Bind subscribes the event on b and returns the function removing it.
func (e *Event[E]) Bind(ctx context.Context, b Binder) func() {
	handler := func(s *discordgo.Session, payload E) {
		e.Handle(ctx, s, payload)
	}
	if e.once {
		return b.AddHandlerOnce(handler)
	}
	return b.AddHandler(handler)
}
