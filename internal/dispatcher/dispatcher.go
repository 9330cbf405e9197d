// Package dispatcher keeps the remotely registered slash commands in sync with
// the local registry and routes incoming interactions to them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/logger"
	"github.com/keshon/botkit/pkg/retrylimit"
)

// ErrAlreadyInitialized is returned by a second call to Initialize.
var ErrAlreadyInitialized = errors.New("dispatcher already initialized")

// Commands is the read side of the command registry.
type Commands interface {
	Command(name string) *command.Command
	Commands() []*command.Command
}

// Remote replaces the registered command set. *discordgo.Session implements it.
type Remote interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// Subscriber registers gateway handlers. *discordgo.Session implements it.
type Subscriber interface {
	AddHandler(handler interface{}) func()
}

// Session is what Initialize needs from a gateway session.
type Session interface {
	Remote
	Subscriber
}

// GuildCache reports guilds known to the session state. *discordgo.State
// implements it.
type GuildCache interface {
	Guild(guildID string) (*discordgo.Guild, error)
}

// Options configures a Dispatcher.
type Options struct {
	AppID string
	// GuildID scopes the command set to one guild; empty registers globally.
	GuildID      string
	SnapshotPath string
	Logger       zerolog.Logger
	Limiter      *retrylimit.AdaptiveLimiter
	Retry        *retrylimit.RetryConfig
}

// Dispatcher syncs commands and routes interactions.
type Dispatcher struct {
	commands Commands
	opts     Options
	log      zerolog.Logger

	initialized atomic.Bool

	mu       sync.Mutex
	awaiting map[string]struct{}
}

// New creates a dispatcher over the given commands.
func New(commands Commands, opts Options) *Dispatcher {
	if opts.SnapshotPath == "" {
		opts.SnapshotPath = "cache.json"
	}
	if opts.Limiter == nil {
		opts.Limiter = retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5)
	}
	return &Dispatcher{
		commands: commands,
		opts:     opts,
		log:      logger.Component(opts.Logger, "dispatcher"),
		awaiting: make(map[string]struct{}),
	}
}

// Descriptors returns the registration descriptors of every local command.
func (d *Dispatcher) Descriptors() []*discordgo.ApplicationCommand {
	cmds := d.commands.Commands()
	defs := make([]*discordgo.ApplicationCommand, len(cmds))
	for i, c := range cmds {
		defs[i] = c.Definition()
	}
	return defs
}

// Diff compares the local commands with the snapshot file. A snapshot that
// cannot be parsed counts as no snapshot, so the next push rewrites it.
func (d *Dispatcher) Diff() (Diff, error) {
	snapshot, err := LoadSnapshot(d.opts.SnapshotPath)
	if errors.Is(err, ErrCorruptSnapshot) {
		d.log.Warn().Err(err).Msg("Ignoring unreadable command snapshot")
		return Compare(d.Descriptors(), nil), nil
	}
	if err != nil {
		return Diff{}, err
	}
	return Compare(d.Descriptors(), snapshot), nil
}

// Sync pushes the local command set when it differs from the snapshot and
// reports whether a push happened.
func (d *Dispatcher) Sync(ctx context.Context, remote Remote) (bool, error) {
	diff, err := d.Diff()
	if err != nil {
		return false, err
	}
	if !diff.Changed() {
		d.log.Info().Msg("Commands are up to date, skipping sync")
		return false, nil
	}

	d.log.Info().
		Strs("added", diff.Added).
		Strs("removed", diff.Removed).
		Strs("modified", diff.Modified).
		Bool("first", diff.NoSnapshot).
		Msg("Commands changed")

	return true, d.Push(ctx, remote)
}

// Push replaces the remote command set unconditionally and saves the snapshot.
func (d *Dispatcher) Push(ctx context.Context, remote Remote) error {
	if d.opts.AppID == "" {
		return errors.New("application ID is required to register commands")
	}

	defs := d.Descriptors()
	scope := "global"
	if d.opts.GuildID != "" {
		scope = "guild " + d.opts.GuildID
	}

	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	if d.opts.Retry != nil {
		cfg = *d.opts.Retry
	}
	cfg.Logger = &d.log

	err := retrylimit.WithRetryConfig(ctx, func() error {
		_, err := remote.ApplicationCommandBulkOverwrite(d.opts.AppID, d.opts.GuildID, defs)
		return err
	}, d.opts.Limiter, cfg)
	if err != nil {
		return fmt.Errorf("failed to register commands (%s): %w", scope, err)
	}

	if err := SaveSnapshot(d.opts.SnapshotPath, defs); err != nil {
		return err
	}
	d.log.Info().Int("count", len(defs)).Str("scope", scope).Msg("Registered commands")
	return nil
}

// Initialize syncs commands once and starts routing interactions from s. It
// fails on a second call.
func (d *Dispatcher) Initialize(ctx context.Context, s Session) error {
	if !d.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}
	if _, err := d.Sync(ctx, s); err != nil {
		return err
	}
	d.Attach(ctx, s)
	return nil
}

// Attach routes interactions from another session, such as an additional shard.
func (d *Dispatcher) Attach(ctx context.Context, s Subscriber) func() {
	return s.AddHandler(func(gs *discordgo.Session, ic *discordgo.InteractionCreate) {
		d.Handle(ctx, Inbound{Session: gs, Guilds: gs.State, Shard: gs.ShardID, Event: ic})
	})
}

// Inbound is one interaction together with the session it arrived on.
type Inbound struct {
	Session command.Session
	Guilds  GuildCache
	Shard   int
	Event   *discordgo.InteractionCreate
}

// Handle routes one interaction. Nothing escapes it: unknown or filtered
// interactions are dropped and failures are logged.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) {
	log := logger.ForShard(d.log, in.Shard)
	ctx = log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("panic: %v", r)).Msg("Interaction routing failed")
		}
	}()

	ic := in.Event
	if ic == nil || ic.Interaction == nil {
		return
	}

	user := actor(ic)
	if user == nil || user.Bot {
		return
	}

	autocomplete := false
	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		if ic.ApplicationCommandData().CommandType != discordgo.ChatApplicationCommand {
			return
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		autocomplete = true
	default:
		return
	}

	if ic.GuildID == "" || in.Guilds == nil {
		return
	}
	if _, err := in.Guilds.Guild(ic.GuildID); err != nil {
		return
	}

	name := ic.ApplicationCommandData().Name
	cmd := d.commands.Command(name)
	if cmd == nil {
		log.Debug().Str("command", name).Msg("Unknown command")
		return
	}

	if !d.acquire(user.ID) {
		log.Debug().Str("command", name).Str("user", user.ID).Msg("User already has a command in flight")
		return
	}
	defer d.release(user.ID)

	i := &command.Interaction{Session: in.Session, Event: ic, Shard: in.Shard}
	if autocomplete {
		cmd.Complete(ctx, i)
		return
	}
	cmd.Execute(ctx, i)
}

// Busy reports whether userID has a dispatch in flight.
func (d *Dispatcher) Busy(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.awaiting[userID]
	return ok
}

func (d *Dispatcher) acquire(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.awaiting[userID]; ok {
		return false
	}
	d.awaiting[userID] = struct{}{}
	return true
}

func (d *Dispatcher) release(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.awaiting, userID)
}

func actor(ic *discordgo.InteractionCreate) *discordgo.User {
	if ic.Member != nil && ic.Member.User != nil {
		return ic.Member.User
	}
	return ic.User
}
