package command

import (
	"io"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botkit/pkg/compose"
)

const EmbedColor = 0xb01e66

// Session is the part of a discordgo session command runners reply through.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Interaction is the triggering event of a command run together with the
// session it arrived on.
type Interaction struct {
	Session Session
	Event   *discordgo.InteractionCreate
	Shard   int
}

// Context keys every command pipeline starts with.
var (
	InteractionKey = compose.NewKey[*Interaction]("interaction")
	CommandKey     = compose.NewKey[*Command]("command")
)

// User returns the actor, whether the interaction came from a guild or a DM.
func (i *Interaction) User() *discordgo.User {
	if i.Event.Member != nil && i.Event.Member.User != nil {
		return i.Event.Member.User
	}
	if i.Event.User != nil {
		return i.Event.User
	}
	return &discordgo.User{ID: "unknown", Username: "Unknown"}
}

// GuildID returns the guild the interaction was created in, empty for DMs.
func (i *Interaction) GuildID() string { return i.Event.GuildID }

// CreatedAt returns the interaction timestamp encoded in its ID.
func (i *Interaction) CreatedAt() time.Time {
	t, err := discordgo.SnowflakeTimestamp(i.Event.ID)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Options returns the top-level slash command options keyed by name.
func (i *Interaction) Options() map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	if i.Event.Type != discordgo.InteractionApplicationCommand && i.Event.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return out
	}
	for _, o := range i.Event.ApplicationCommandData().Options {
		out[o.Name] = o
	}
	return out
}

// Respond sends a public message response.
func (i *Interaction) Respond(content string) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// RespondEphemeral sends a message only the actor can see.
func (i *Interaction) RespondEphemeral(content string) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// RespondEmbed sends a public embed response.
func (i *Interaction) RespondEmbed(embed *discordgo.MessageEmbed) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{withColor(embed)}},
	})
}

// RespondEmbedEphemeral sends an embed only the actor can see.
func (i *Interaction) RespondEmbedEphemeral(embed *discordgo.MessageEmbed) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{withColor(embed)},
		},
	})
}

// RespondEphemeralWithFile sends an ephemeral embed with an attached file.
func (i *Interaction) RespondEphemeralWithFile(embed *discordgo.MessageEmbed, r io.Reader, name string) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{withColor(embed)},
			Files:  []*discordgo.File{{Name: name, Reader: r}},
		},
	})
}

// Defer acknowledges the interaction without replying yet.
func (i *Interaction) Defer(ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return i.Session.InteractionRespond(i.Event.Interaction, resp)
}

// EditResponse replaces the content of the original response.
func (i *Interaction) EditResponse(content string) (*discordgo.Message, error) {
	return i.Session.InteractionResponseEdit(i.Event.Interaction, &discordgo.WebhookEdit{Content: &content})
}

// Followup sends an additional message after the initial response.
func (i *Interaction) Followup(content string, ephemeral bool) error {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err := i.Session.FollowupMessageCreate(i.Event.Interaction, true, params)
	return err
}

// RespondChoices answers an autocomplete interaction.
func (i *Interaction) RespondChoices(choices []*discordgo.ApplicationCommandOptionChoice) error {
	return i.Session.InteractionRespond(i.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

func withColor(embed *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	if embed.Color == 0 {
		embed.Color = EmbedColor
	}
	return embed
}
