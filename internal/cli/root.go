// Package cli implements the operator command line: inspecting and editing
// configuration files and checking or forcing the slash command sync.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/keshon/botkit/internal/dispatcher"
	"github.com/keshon/botkit/internal/registry"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Connector opens a REST session for pushing commands and returns it with
// the application ID.
type Connector func(ctx context.Context) (dispatcher.Remote, string, error)

// Options wires the CLI to the rest of the program.
type Options struct {
	Registry func(ctx context.Context) (*registry.Registry, error)
	Connect  Connector

	ConfigDir    string
	CommandCache string
	GuildID      string
}

type rootOptions struct {
	Options
	Format string
}

// NewRootCommand creates the root command.
func NewRootCommand(opts Options) *cobra.Command {
	ro := &rootOptions{Options: opts}

	cmd := &cobra.Command{
		Use:           "botkit",
		Short:         "Operate a botkit deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, ro.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", ro.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&ro.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&ro.ConfigDir, "config-dir", opts.ConfigDir, "directory holding configuration files")
	cmd.PersistentFlags().StringVar(&ro.CommandCache, "cache", opts.CommandCache, "command snapshot file")
	cmd.PersistentFlags().StringVar(&ro.GuildID, "guild", opts.GuildID, "register commands in this guild only")

	cmd.AddCommand(newConfigsCommand(ro))
	cmd.AddCommand(newCommandsCommand(ro))
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
