// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/botkit/internal/app"
	"github.com/keshon/botkit/internal/config"
	"github.com/keshon/botkit/internal/discord"
	"github.com/keshon/botkit/internal/logger"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERR]", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Dir: cfg.LogDir})
	log.Info().
		Str("version", app.Version).
		Bool("dotenv", dotenv).
		Bool("sharding", cfg.Sharding).
		Stringer("shards", cfg.Shards).
		Msgf("Starting %s", app.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := app.Registry(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register units")
	}

	bot := discord.New(cfg, reg, log)

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Discord bot error")
			os.Exit(1)
		}
	}

	log.Info().Msg("Discord bot exited cleanly")
}
