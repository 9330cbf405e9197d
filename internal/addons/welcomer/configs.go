package welcomer

import (
	"github.com/keshon/botkit/internal/configuration"
)

// ID namespaces the addon's configuration files under configs/welcomer/.
const ID = "welcomer"

const colorSchema = `string & =~"^#[0-9a-fA-F]{6}$"`

// WelcomeSettings configures the message sent when a member joins.
type WelcomeSettings struct {
	ChannelID string `json:"welcomeChannelId"`
	Message   string `json:"welcomeMessage"`
	Color     string `json:"welcomeColor"`
	// Image names a file in the assets directory shown in the embed.
	Image     string `json:"welcomeImage"`
}

// GoodbyeSettings configures the message sent when a member leaves.
type GoodbyeSettings struct {
	ChannelID string `json:"goodbyeChannelId"`
	Message   string `json:"goodbyeMessage"`
	Color     string `json:"goodbyeColor"`
}

// Welcome is stored at configs/welcomer/welcome.yml.
var Welcome = configuration.MustNew(configuration.Options[WelcomeSettings]{
	Name:   "welcome",
	Format: configuration.YAML,
	Addon:  ID,
	Schema: `
welcomeChannelId: string
welcomeMessage:   string
welcomeColor:     ` + colorSchema + `
welcomeImage:     string & =~"^[^/\\\\]*$"`,
	Defaults: WelcomeSettings{
		Message: "Welcome {{user}} to the server! We hope you enjoy your stay!",
		Color:   "#00ff00",
	},
})

// Goodbye is stored at configs/welcomer/goodbye.yml.
var Goodbye = configuration.MustNew(configuration.Options[GoodbyeSettings]{
	Name:   "goodbye",
	Format: configuration.YAML,
	Addon:  ID,
	Schema: `
goodbyeChannelId: string
goodbyeMessage:   string
goodbyeColor:     ` + colorSchema,
	Defaults: GoodbyeSettings{
		Message: "Goodbye {{user}}! We hope to see you again soon!",
		Color:   "#ff0000",
	},
})
