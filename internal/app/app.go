// Package app assembles the units the bot ships with.
package app

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/addon"
	"github.com/keshon/botkit/internal/addons/welcomer"
	"github.com/keshon/botkit/internal/commands"
	"github.com/keshon/botkit/internal/events"
	"github.com/keshon/botkit/internal/logger"
	"github.com/keshon/botkit/internal/registry"
)

const (
	Name    = "botkit"
	Version = "1.0.0"
)

// Addons returns the addons installed at startup.
func Addons() []*addon.Addon {
	return []*addon.Addon{welcomer.New()}
}

// Registry registers the built-in commands and events, then installs every addon.
func Registry(ctx context.Context, log zerolog.Logger) (*registry.Registry, error) {
	r := registry.New(log)

	if err := r.Register(registry.Commands(commands.All()...)...); err != nil {
		return nil, err
	}
	if err := r.Register(registry.Events(events.All()...)...); err != nil {
		return nil, err
	}

	host := semver.MustParse(Version)
	if err := addon.Install(ctx, r, host, logger.Component(log, "addons"), Addons()...); err != nil {
		return nil, err
	}
	return r, nil
}
