// Package discord runs the registered commands, events and configurations on
// one or more gateway sessions.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/config"
	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/internal/dispatcher"
	"github.com/keshon/botkit/internal/logger"
	"github.com/keshon/botkit/internal/registry"
	"github.com/keshon/botkit/pkg/util"
)

// Intents requested by every shard.
const Intents = discordgo.IntentsAllWithoutPrivileged |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

const configWorkers = 4

// Bot owns the gateway sessions of the process.
type Bot struct {
	cfg      *config.Config
	registry *registry.Registry
	base     zerolog.Logger
	log      zerolog.Logger

	sessions   []*discordgo.Session
	opened     []*discordgo.Session
	dispatcher *dispatcher.Dispatcher
	unbind     []func()
}

// New creates a bot over the units in reg.
func New(cfg *config.Config, reg *registry.Registry, log zerolog.Logger) *Bot {
	return &Bot{cfg: cfg, registry: reg, base: log, log: logger.ForManager(log)}
}

// Run starts the bot and blocks until ctx is cancelled.
//
// Startup order: configurations load, the dispatcher syncs commands and
// subscribes every shard to interactions, events are bound, then the shards
// connect. Nothing is bound after Open, so a once binding on ready sees the
// first READY.
func (b *Bot) Run(ctx context.Context) error {
	if err := LoadConfigurations(ctx, b.registry.Configurations(), b.cfg.ConfigDir, b.log); err != nil {
		return err
	}

	count, err := b.shardCount()
	if err != nil {
		return err
	}

	defer b.close()
	for id := 0; id < count; id++ {
		if err := b.newShard(id, count); err != nil {
			return err
		}
	}

	first := b.sessions[0]
	me, err := first.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch application user: %w", err)
	}

	b.dispatcher = dispatcher.New(b.registry, dispatcher.Options{
		AppID:        me.ID,
		GuildID:      b.cfg.DiscordGuildID,
		SnapshotPath: b.cfg.CommandCache,
		Logger:       b.base,
	})
	if err := b.dispatcher.Initialize(shardContext(ctx, b.base, first), first); err != nil {
		return fmt.Errorf("failed to initialize commands: %w", err)
	}
	for _, s := range b.sessions[1:] {
		b.unbind = append(b.unbind, b.dispatcher.Attach(shardContext(ctx, b.base, s), s))
	}

	for _, s := range b.sessions {
		sctx := shardContext(ctx, b.base, s)
		for _, e := range b.registry.Events() {
			b.unbind = append(b.unbind, e.Bind(sctx, s))
		}
	}

	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			return fmt.Errorf("failed to open shard %d: %w", s.ShardID, err)
		}
		b.opened = append(b.opened, s)
		logger.ForShard(b.base, s.ShardID).Info().Msg("Shard connected")
	}

	b.log.Info().Str("user", me.String()).Int("shards", count).Msg("Bot is running")
	<-ctx.Done()
	b.log.Info().Msg("Shutdown signal received, closing sessions")
	return nil
}

func (b *Bot) shardCount() (int, error) {
	if !b.cfg.Sharding {
		return 1, nil
	}
	if !b.cfg.Shards.Auto() {
		return int(b.cfg.Shards), nil
	}

	rest, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	return RecommendedShards(rest)
}

func (b *Bot) newShard(id, count int) error {
	s, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.Identify.Intents = Intents
	if count > 1 {
		s.ShardID = id
		s.ShardCount = count
	}
	b.sessions = append(b.sessions, s)
	return nil
}

func (b *Bot) close() {
	for _, off := range b.unbind {
		off()
	}
	for _, s := range b.opened {
		if err := s.Close(); err != nil {
			logger.ForShard(b.base, s.ShardID).Warn().Err(err).Msg("Failed to close session")
		}
	}
	b.sessions, b.opened, b.unbind = nil, nil, nil
}

func shardContext(ctx context.Context, log zerolog.Logger, s *discordgo.Session) context.Context {
	l := logger.ForShard(log, s.ShardID)
	return l.WithContext(ctx)
}

// Gateway reports the recommended shard count. *discordgo.Session implements it.
type Gateway interface {
	GatewayBot(options ...discordgo.RequestOption) (*discordgo.GatewayBotResponse, error)
}

// RecommendedShards asks the gateway how many shards to run.
func RecommendedShards(g Gateway) (int, error) {
	resp, err := g.GatewayBot()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch gateway info: %w", err)
	}
	if resp.Shards < 1 {
		return 1, nil
	}
	return resp.Shards, nil
}

// LoadConfigurations attaches every entry to dir and loads them concurrently.
// Entries that fail validation fall back to their defaults; only I/O errors
// are returned.
func LoadConfigurations(ctx context.Context, entries []configuration.Entry, dir string, log zerolog.Logger) error {
	env := configuration.Environment{Dir: dir, Logger: log}

	err := util.Parallel(ctx, entries, configWorkers, func(ctx context.Context, e configuration.Entry) error {
		e.Attach(env)
		if err := e.Load(ctx); err != nil {
			return fmt.Errorf("failed to load configuration %s: %w", e.Key(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("count", len(entries)).Str("dir", dir).Msg("Configurations loaded")
	return nil
}
