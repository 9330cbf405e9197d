// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/botkit/internal/app"
	"github.com/keshon/botkit/internal/cli"
	"github.com/keshon/botkit/internal/config"
	"github.com/keshon/botkit/internal/dispatcher"
	"github.com/keshon/botkit/internal/logger"
	"github.com/keshon/botkit/internal/registry"
)

// paths is the subset of the bot environment the CLI needs without a token.
type paths struct {
	ConfigDir    string `env:"CONFIG_DIR" envDefault:"configs"`
	CommandCache string `env:"COMMAND_CACHE" envDefault:"cache.json"`
	GuildID      string `env:"DISCORD_GUILD_ID"`
}

func main() {
	_ = godotenv.Load()

	p, err := env.ParseAs[paths]()
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}

	root := cli.NewRootCommand(cli.Options{
		Registry: func(ctx context.Context) (*registry.Registry, error) {
			return app.Registry(ctx, logger.Nop())
		},
		Connect:      connect,
		ConfigDir:    p.ConfigDir,
		CommandCache: p.CommandCache,
		GuildID:      p.GuildID,
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (dispatcher.Remote, string, error) {
	cfg, _, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}
	me, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch application user: %w", err)
	}
	return s, me.ID, nil
}
