package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/botkit/internal/dispatcher"
)

func newCommandsCommand(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Compare or push the slash command set",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "diff",
		Short: "Show how local commands differ from the last pushed snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ro.dispatcher(cmd, "")
			if err != nil {
				return err
			}
			diff, err := d.Diff()
			if err != nil {
				return err
			}

			if ro.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), diff)
			}
			out := cmd.OutOrStdout()
			if !diff.Changed() {
				fmt.Fprintln(out, "Commands are up to date")
				return nil
			}
			if diff.NoSnapshot {
				fmt.Fprintln(out, "No snapshot, every command will be pushed")
			}
			for _, line := range []struct {
				label string
				names []string
			}{
				{"added", diff.Added},
				{"removed", diff.Removed},
				{"modified", diff.Modified},
			} {
				if len(line.names) > 0 {
					fmt.Fprintf(out, "%s: %s\n", line.label, strings.Join(line.names, ", "))
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Push the local command set, skipping the snapshot check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ro.Connect == nil {
				return errors.New("no Discord connection configured")
			}
			remote, appID, err := ro.Connect(cmd.Context())
			if err != nil {
				return err
			}
			d, err := ro.dispatcher(cmd, appID)
			if err != nil {
				return err
			}
			if err := d.Push(cmd.Context(), remote); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d commands\n", len(d.Descriptors()))
			return nil
		},
	})

	return cmd
}

func (ro *rootOptions) dispatcher(cmd *cobra.Command, appID string) (*dispatcher.Dispatcher, error) {
	reg, err := ro.Registry(cmd.Context())
	if err != nil {
		return nil, err
	}
	return dispatcher.New(reg, dispatcher.Options{
		AppID:        appID,
		GuildID:      ro.GuildID,
		SnapshotPath: ro.CommandCache,
		Logger:       zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger(),
	}), nil
}
