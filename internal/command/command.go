// Package command binds a slash command definition to a middleware pipeline and
// a runner.
//
// Commands are declared with a Builder and frozen with Build:
//
//	var Ping = command.New(&discordgo.ApplicationCommand{Name: "ping", Description: "Pong!"}).
//		Use(middleware.Cooldown(3 * time.Second)).
//		Run(func(ctx context.Context, c compose.Context) error {
//			return command.InteractionKey.MustGet(c).Respond("Pong!")
//		}).
//		Build()
//
// Inhibitors run first, then middleware in registration order, then the runner.
// Errors and panics raised anywhere in that chain are logged with the command
// name and swallowed.
package command

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/pkg/compose"
)

// NotImplementedMessage is the reply of a command without a runner.
const NotImplementedMessage = "This command is not implemented yet."

// Inhibitor decides whether a command may run for an interaction. An inhibitor
// that disallows is responsible for telling the user why.
type Inhibitor func(ctx context.Context, i *Interaction, cmd *Command) bool

// Builder accumulates the steps of a command.
type Builder struct {
	def          *discordgo.ApplicationCommand
	inhibitors   []Inhibitor
	middleware   *compose.Builder
	run          compose.Terminal
	autocomplete compose.Terminal
}

// New starts a command from its registration descriptor.
func New(def *discordgo.ApplicationCommand) *Builder {
	return &Builder{def: def, middleware: compose.New()}
}

// Inhibit appends an inhibitor. Inhibitors run before any middleware.
func (b *Builder) Inhibit(fn Inhibitor) *Builder {
	b.inhibitors = append(b.inhibitors, fn)
	return b
}

// Use appends a middleware step.
func (b *Builder) Use(mw compose.Middleware) *Builder {
	b.middleware.Use(mw)
	return b
}

// Parallel appends a step running mws concurrently.
func (b *Builder) Parallel(mws ...compose.Middleware) *Builder {
	b.middleware.Parallel(mws...)
	return b
}

// Run sets the terminal runner.
func (b *Builder) Run(fn compose.Terminal) *Builder {
	b.run = fn
	return b
}

// Autocomplete sets the autocomplete handler. It runs without inhibitors or
// middleware.
func (b *Builder) Autocomplete(fn compose.Terminal) *Builder {
	b.autocomplete = fn
	return b
}

// Build freezes the command.
func (b *Builder) Build() *Command {
	def := *b.def
	if def.Type == 0 {
		def.Type = discordgo.ChatApplicationCommand
	}

	c := &Command{
		def:          &def,
		run:          b.run,
		autocomplete: b.autocomplete,
	}

	steps := compose.New()
	for _, fn := range b.inhibitors {
		steps.Use(inhibitorStep(c, fn))
	}
	c.pipeline = steps.Append(b.middleware.Build()).Build()

	if c.run == nil {
		c.run = notImplemented
	}
	return c
}

// Command is a frozen slash command.
type Command struct {
	def          *discordgo.ApplicationCommand
	pipeline     *compose.Pipeline
	run          compose.Terminal
	autocomplete compose.Terminal
}

// Name returns the command name.
func (c *Command) Name() string { return c.def.Name }

// Description returns the command description.
func (c *Command) Description() string { return c.def.Description }

// Definition returns a copy of the registration descriptor.
func (c *Command) Definition() *discordgo.ApplicationCommand {
	def := *c.def
	return &def
}

// HasAutocomplete reports whether an autocomplete handler is set.
func (c *Command) HasAutocomplete() bool { return c.autocomplete != nil }

// Execute runs inhibitors, middleware and the runner for i. It reports whether
// the runner was reached; failures are logged, never returned.
func (c *Command) Execute(ctx context.Context, i *Interaction) (ran bool) {
	log := zerolog.Ctx(ctx).With().Str("command", c.Name()).Logger()
	defer recoverRun(&log, "Command panicked")

	ran, err := c.pipeline.Run(ctx, c.base(i), c.run)
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	return ran
}

// Complete runs the autocomplete handler for i, if any.
func (c *Command) Complete(ctx context.Context, i *Interaction) {
	if c.autocomplete == nil {
		return
	}
	log := zerolog.Ctx(ctx).With().Str("command", c.Name()).Logger()
	defer recoverRun(&log, "Autocomplete panicked")

	if err := c.autocomplete(ctx, compose.NewContext(c.base(i))); err != nil {
		log.Error().Err(err).Msg("Autocomplete failed")
	}
}

func (c *Command) base(i *Interaction) compose.Fragment {
	return compose.Merge(InteractionKey.Set(i), CommandKey.Set(c))
}

func inhibitorStep(c *Command, fn Inhibitor) compose.Middleware {
	return func(ctx context.Context, cc compose.Context) (compose.Fragment, error) {
		if !fn(ctx, InteractionKey.MustGet(cc), c) {
			return nil, compose.ErrHalt
		}
		return nil, nil
	}
}

func notImplemented(ctx context.Context, c compose.Context) error {
	return InteractionKey.MustGet(c).RespondEphemeral(NotImplementedMessage)
}

func recoverRun(log *zerolog.Logger, msg string) {
	if r := recover(); r != nil {
		log.Error().
			Err(fmt.Errorf("panic: %v", r)).
			Str("stack", string(debug.Stack())).
			Msg(msg)
	}
}
