// Package docs renders the command reference for README.md.
package docs

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/pkg/filestore"
)

// DefaultTemplate is used when no README.md.tmpl exists.
const DefaultTemplate = `# {{.Name}}

## Commands

{{.CommandSections}}`

// CommandSections lists cmds as markdown, one bullet per command with its
// options nested below. cmds are expected in display order.
func CommandSections(cmds []*command.Command) string {
	var buf bytes.Buffer
	for _, c := range cmds {
		fmt.Fprintf(&buf, "- **`/%s`** %s\n", c.Name(), c.Description())
		writeOptions(&buf, c.Definition().Options, 1)
	}
	return buf.String()
}

func writeOptions(buf *bytes.Buffer, opts []*discordgo.ApplicationCommandOption, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, o := range opts {
		req := ""
		if o.Required {
			req = ", required"
		}
		fmt.Fprintf(buf, "%s- `%s` (%s%s) %s\n", indent, o.Name, optionType(o.Type), req, o.Description)
		writeOptions(buf, o.Options, depth+1)
	}
}

func optionType(t discordgo.ApplicationCommandOptionType) string {
	switch t {
	case discordgo.ApplicationCommandOptionSubCommand:
		return "subcommand"
	case discordgo.ApplicationCommandOptionSubCommandGroup:
		return "group"
	case discordgo.ApplicationCommandOptionString:
		return "string"
	case discordgo.ApplicationCommandOptionInteger:
		return "integer"
	case discordgo.ApplicationCommandOptionBoolean:
		return "boolean"
	case discordgo.ApplicationCommandOptionUser:
		return "user"
	case discordgo.ApplicationCommandOptionChannel:
		return "channel"
	case discordgo.ApplicationCommandOptionRole:
		return "role"
	case discordgo.ApplicationCommandOptionMentionable:
		return "mentionable"
	case discordgo.ApplicationCommandOptionNumber:
		return "number"
	case discordgo.ApplicationCommandOptionAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Render fills tmpl with the bot name and command sections.
func Render(tmpl, name string, cmds []*command.Command) ([]byte, error) {
	t, err := template.New("readme").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse readme template: %w", err)
	}

	data := struct {
		Name            string
		CommandSections string
	}{name, CommandSections(cmds)}

	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("failed to render readme: %w", err)
	}
	return out.Bytes(), nil
}

// UpdateReadme renders tmplPath (or DefaultTemplate when it is missing) into
// outPath and reports whether the file changed.
func UpdateReadme(tmplPath, outPath, name string, cmds []*command.Command) (bool, error) {
	tmpl := DefaultTemplate
	data, err := os.ReadFile(tmplPath)
	switch {
	case err == nil:
		tmpl = string(data)
	case !os.IsNotExist(err):
		return false, err
	}

	out, err := Render(tmpl, name, cmds)
	if err != nil {
		return false, err
	}
	return filestore.WriteIfChanged(outPath, out)
}
