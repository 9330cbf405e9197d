// Package events holds the built-in gateway event handlers.
package events

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/event"
	"github.com/keshon/botkit/pkg/compose"
)

// Ready logs the bot identity once the first READY arrives.
var Ready = event.New[*discordgo.Ready]("ready").
	Once().
	Run(func(ctx context.Context, c compose.Context) error {
		r := event.Payload[*discordgo.Ready](c)
		log := zerolog.Ctx(ctx)

		if r.User != nil {
			log.Info().Str("user", r.User.String()).Int("guilds", len(r.Guilds)).Msg("Logged in")
		}
		if r.Shard != nil {
			log.Info().Int("shard", r.Shard[0]).Int("shards", r.Shard[1]).Msg("Running as shard")
		}
		return nil
	}).
	MustBuild()

// MessageCreate logs messages from users.
var MessageCreate = event.New[*discordgo.MessageCreate]("messageCreate").
	Run(func(ctx context.Context, c compose.Context) error {
		m := event.Payload[*discordgo.MessageCreate](c)
		if m.Author == nil || m.Author.Bot {
			return nil
		}
		zerolog.Ctx(ctx).Info().
			Str("author", m.Author.String()).
			Str("channel", m.ChannelID).
			Str("content", m.Content).
			Msg("Message received")
		return nil
	}).
	MustBuild()

// All returns the built-in events.
func All() []event.Binding {
	return []event.Binding{Ready, MessageCreate}
}
