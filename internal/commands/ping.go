// Package commands holds the built-in slash commands.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/middleware"
	"github.com/keshon/botkit/pkg/compose"
)

// heartbeat is implemented by *discordgo.Session.
type heartbeat interface {
	HeartbeatLatency() time.Duration
}

var now = time.Now

// Ping replies with the round-trip and gateway latencies.
var Ping = command.New(&discordgo.ApplicationCommand{
	Name:        "ping",
	Description: "Replies with pong!",
}).
	Inhibit(middleware.CooldownInhibitor(3 * time.Second)).
	Run(ping).
	Build()

func ping(ctx context.Context, c compose.Context) error {
	i := command.InteractionKey.MustGet(c)

	if err := i.Respond("Pinging..."); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	latency := now().Sub(i.CreatedAt()).Milliseconds()

	var api int64
	if hb, ok := i.Session.(heartbeat); ok {
		api = hb.HeartbeatLatency().Milliseconds()
	}

	_, err := i.EditResponse(fmt.Sprintf("Pong! 🏓\nBot Latency: %dms\nAPI Latency: %dms", latency, api))
	return err
}

// All returns the built-in commands.
func All() []*command.Command {
	return []*command.Command{Ping}
}
