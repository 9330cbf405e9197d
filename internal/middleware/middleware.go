// Package middleware provides reusable command middleware: cooldowns, guild
// and permission checks, usage logging and configuration loading.
package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/pkg/compose"
)

// GuildOnly halts commands used outside a guild.
func GuildOnly() compose.Middleware {
	return func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
		i := command.InteractionKey.MustGet(c)
		if i.GuildID() != "" {
			return nil, nil
		}
		if err := i.RespondEphemeral("You must be in a guild to use this command."); err != nil {
			return nil, err
		}
		return nil, compose.ErrHalt
	}
}

// CommandLogger logs every command invocation that reaches it.
func CommandLogger() compose.Middleware {
	return func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
		i := command.InteractionKey.MustGet(c)
		user := i.User()
		zerolog.Ctx(ctx).Info().
			Str("command", command.CommandKey.MustGet(c).Name()).
			Str("guild", i.GuildID()).
			Str("channel", i.Event.ChannelID).
			Str("user", user.ID).
			Str("username", user.Username).
			Msg("Command invoked")
		return nil, nil
	}
}

// RequirePermissions halts unless the member holds at least one of perms.
// Administrators always pass; an empty list allows everyone.
func RequirePermissions(perms ...int64) compose.Middleware {
	return func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
		i := command.InteractionKey.MustGet(c)
		if len(perms) == 0 {
			return nil, nil
		}

		m := i.Event.Member
		if m == nil {
			return nil, nil
		}
		if m.Permissions&discordgo.PermissionAdministrator != 0 {
			return nil, nil
		}
		for _, p := range perms {
			if m.Permissions&p != 0 {
				return nil, nil
			}
		}

		allowed := make([]string, 0, len(perms))
		for _, p := range perms {
			name := PermissionNames[p]
			if name == "" {
				name = fmt.Sprintf("0x%x", p)
			}
			allowed = append(allowed, name)
		}
		msg := fmt.Sprintf(
			"You need at least one of the following permissions to run this command:\n`%s`",
			strings.Join(allowed, "`, `"),
		)
		if err := i.RespondEmbedEphemeral(&discordgo.MessageEmbed{Description: msg}); err != nil {
			return nil, err
		}
		return nil, compose.ErrHalt
	}
}

// LoadConfig stores the current value of cfg under key.
func LoadConfig[T any](key compose.Key[T], cfg *configuration.Configuration[T]) compose.Middleware {
	return func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
		return key.Set(cfg.Get(ctx)), nil
	}
}
