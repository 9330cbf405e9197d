// Package welcomer greets members joining a guild and says goodbye to those
// leaving, in channels chosen through its YAML configuration.
package welcomer

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/addon"
	"github.com/keshon/botkit/internal/event"
	"github.com/keshon/botkit/internal/middleware"
	"github.com/keshon/botkit/internal/registry"
	"github.com/keshon/botkit/pkg/compose"
)

// Manifest describes the addon.
var Manifest = addon.Manifest{
	ID:          ID,
	Name:        "Welcomer",
	Description: "Welcome and goodbye messages for guild members",
	Version:     "1.0.0",
	Author:      "keshon",
}

// Sender posts channel messages. *discordgo.Session implements it.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Guilds looks up cached guilds. *discordgo.State implements it.
type Guilds interface {
	Guild(guildID string) (*discordgo.Guild, error)
}

// AssetsDir holds the images referenced by welcomeImage.
var AssetsDir = "assets"

type conn struct {
	send   Sender
	guilds Guilds
	assets fs.FS
}

// resolver extracts the connection from an event context.
type resolver func(c compose.Context) conn

func fromSession(c compose.Context) conn {
	s := event.SessionKey.MustGet(c)
	return conn{send: s, guilds: s.State, assets: os.DirFS(AssetsDir)}
}

var goodbyeKey = compose.NewKey[GoodbyeSettings]("config")

// New returns the addon.
func New() *addon.Addon {
	return addon.New(Manifest, func(context.Context) ([]registry.Unit, error) {
		return units(fromSession), nil
	})
}

func units(resolve resolver) []registry.Unit {
	add := event.New[*discordgo.GuildMemberAdd]("guildMemberAdd").
		Run(func(ctx context.Context, c compose.Context) error {
			return welcome(ctx, resolve(c), Welcome.Get(ctx), event.Payload[*discordgo.GuildMemberAdd](c).Member)
		}).
		MustBuild()

	remove := event.New[*discordgo.GuildMemberRemove]("guildMemberRemove").
		Use(middleware.LoadConfig(goodbyeKey, Goodbye)).
		Run(func(ctx context.Context, c compose.Context) error {
			return goodbye(ctx, resolve(c), goodbyeKey.MustGet(c), event.Payload[*discordgo.GuildMemberRemove](c).Member)
		}).
		MustBuild()

	units := registry.Configurations(Welcome, Goodbye)
	return append(units, registry.Events(add, remove)...)
}

func welcome(ctx context.Context, cn conn, cfg WelcomeSettings, m *discordgo.Member) error {
	if cfg.ChannelID == "" || m == nil || m.User == nil {
		return nil
	}
	if !channelInGuild(cn.guilds, m.GuildID, cfg.ChannelID) {
		zerolog.Ctx(ctx).Warn().Str("channel", cfg.ChannelID).Msg("Welcome channel not found")
		return nil
	}

	text, err := render(cfg.Message, m.User.Mention())
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Welcome %s!", m.User.Username),
		Description: text,
		Color:       parseColor(cfg.Color),
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: m.User.AvatarURL("")},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	msg := &discordgo.MessageSend{Content: m.User.Mention(), Embeds: []*discordgo.MessageEmbed{embed}}

	if cfg.Image != "" && cn.assets != nil {
		f, err := cn.assets.Open(cfg.Image)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("image", cfg.Image).Msg("Welcome image not found")
		} else {
			defer f.Close()
			msg.Files = []*discordgo.File{{
				Name:        cfg.Image,
				ContentType: mime.TypeByExtension(path.Ext(cfg.Image)),
				Reader:      f,
			}}
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + cfg.Image}
		}
	}

	_, err = cn.send.ChannelMessageSendComplex(cfg.ChannelID, msg)
	if err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}
	return nil
}

func goodbye(ctx context.Context, cn conn, cfg GoodbyeSettings, m *discordgo.Member) error {
	if cfg.ChannelID == "" || m == nil || m.User == nil {
		return nil
	}
	g, err := cn.guilds.Guild(m.GuildID)
	if err != nil || !hasChannel(g, cfg.ChannelID) {
		zerolog.Ctx(ctx).Warn().Str("channel", cfg.ChannelID).Msg("Goodbye channel not found")
		return nil
	}

	text, err := render(cfg.Message, m.User.Username)
	if err != nil {
		return err
	}

	_, err = cn.send.ChannelMessageSendComplex(cfg.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       fmt.Sprintf("Member Left %s", g.Name),
			Description: text,
			Color:       parseColor(cfg.Color),
			Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: m.User.AvatarURL("1024")},
			Timestamp:   time.Now().Format(time.RFC3339),
			Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Members: %d", g.MemberCount), IconURL: g.IconURL("")},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to send goodbye message: %w", err)
	}
	return nil
}

func channelInGuild(guilds Guilds, guildID, channelID string) bool {
	g, err := guilds.Guild(guildID)
	return err == nil && hasChannel(g, channelID)
}

func hasChannel(g *discordgo.Guild, channelID string) bool {
	for _, ch := range g.Channels {
		if ch.ID == channelID {
			return true
		}
	}
	return false
}

// render fills {{user}} in a configured message.
func render(text, user string) (string, error) {
	tpl, err := template.New("message").
		Funcs(template.FuncMap{"user": func() string { return user }}).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid message template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, nil); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return buf.String(), nil
}

func parseColor(hex string) int {
	n, err := strconv.ParseInt(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}
