package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/botkit/pkg/filestore"
)

// ErrCorruptSnapshot is returned by LoadSnapshot when the file is not a JSON
// command list.
var ErrCorruptSnapshot = errors.New("command snapshot is corrupt")

// Diff lists how the local command set differs from the last pushed snapshot.
type Diff struct {
	// NoSnapshot is set when nothing was pushed before.
	NoSnapshot bool     `json:"noSnapshot"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	Modified   []string `json:"modified"`
}

// Changed reports whether a push is needed.
func (d Diff) Changed() bool {
	return d.NoSnapshot || len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}

// Compare diffs local descriptors against a snapshot. A nil snapshot means no
// snapshot exists.
func Compare(local, snapshot []*discordgo.ApplicationCommand) Diff {
	var d Diff
	if snapshot == nil {
		d.NoSnapshot = true
	}

	remote := make(map[string]string, len(snapshot))
	for _, c := range snapshot {
		remote[c.Name] = fingerprint(c)
	}

	seen := make(map[string]struct{}, len(local))
	for _, c := range local {
		seen[c.Name] = struct{}{}
		fp, ok := remote[c.Name]
		switch {
		case !ok:
			d.Added = append(d.Added, c.Name)
		case fp != fingerprint(c):
			d.Modified = append(d.Modified, c.Name)
		}
	}
	for name := range remote {
		if _, ok := seen[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Modified)
	return d
}

// fingerprint is the canonical JSON of the fields that matter for registration.
func fingerprint(cmd *discordgo.ApplicationCommand) string {
	data, _ := json.Marshal(normalizeCommand(cmd))
	return string(data)
}

// normalizeCommand strips runtime-only fields (IDs, versions, etc.) and sorts options.
func normalizeCommand(cmd *discordgo.ApplicationCommand) map[string]interface{} {
	typ := cmd.Type
	if typ == 0 {
		typ = discordgo.ChatApplicationCommand
	}
	obj := map[string]interface{}{
		"name":        cmd.Name,
		"description": cmd.Description,
		"type":        typ,
	}
	if cmd.DefaultMemberPermissions != nil {
		obj["default_member_permissions"] = *cmd.DefaultMemberPermissions
	}
	if cmd.NSFW != nil {
		obj["nsfw"] = *cmd.NSFW
	}
	if len(cmd.Options) > 0 {
		obj["options"] = normalizeOptions(cmd.Options)
	}
	return obj
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	normalized := make([]map[string]interface{}, len(opts))

	for i, o := range opts {
		entry := map[string]interface{}{
			"name":         o.Name,
			"description":  o.Description,
			"type":         o.Type,
			"required":     o.Required,
			"autocomplete": o.Autocomplete,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, c := range o.Choices {
				choices[j] = map[string]interface{}{
					"name":  c.Name,
					"value": c.Value,
				}
			}
			entry["choices"] = choices
		}
		if len(o.ChannelTypes) > 0 {
			entry["channel_types"] = o.ChannelTypes
		}
		if o.MinValue != nil {
			entry["min_value"] = *o.MinValue
		}
		if o.MaxValue != 0 {
			entry["max_value"] = o.MaxValue
		}
		if o.MinLength != nil {
			entry["min_length"] = *o.MinLength
		}
		if o.MaxLength != 0 {
			entry["max_length"] = o.MaxLength
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		normalized[i] = entry
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i]["name"].(string) < normalized[j]["name"].(string)
	})

	return normalized
}

// LoadSnapshot reads the last pushed descriptors. A missing file returns nil.
func LoadSnapshot(path string) ([]*discordgo.ApplicationCommand, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read command snapshot: %w", err)
	}

	cmds := []*discordgo.ApplicationCommand{}
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSnapshot, path, err)
	}
	return cmds, nil
}

// SaveSnapshot replaces the snapshot file with cmds.
func SaveSnapshot(path string, cmds []*discordgo.ApplicationCommand) error {
	if cmds == nil {
		cmds = []*discordgo.ApplicationCommand{}
	}
	data, err := json.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode command snapshot: %w", err)
	}
	if _, err := filestore.WriteIfChanged(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to save command snapshot: %w", err)
	}
	return nil
}
