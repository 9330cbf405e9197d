package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/pkg/util"
)

type configInfo struct {
	Key      string `json:"key"`
	Path     string `json:"path"`
	Exists   bool   `json:"exists"`
	Modified string `json:"modified,omitempty"`
}

func newConfigsCommand(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Inspect and edit configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List declared configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ro.entries(cmd)
			if err != nil {
				return err
			}

			infos := make([]configInfo, 0, len(entries))
			for _, e := range entries {
				info := configInfo{Key: e.Key(), Path: e.Path()}
				if st, err := os.Stat(e.Path()); err == nil {
					info.Exists = true
					info.Modified = util.FormatDateTpl(st.ModTime(), "YYYY-MM-DD hh:mm:ss")
				}
				infos = append(infos, info)
			}

			if ro.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			data := pterm.TableData{{"KEY", "PATH", "MODIFIED"}}
			for _, i := range infos {
				mod := i.Modified
				if !i.Exists {
					mod = "missing"
				}
				data = append(data, []string{i.Key, i.Path, mod})
			}
			return renderTable(cmd.OutOrStdout(), data)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Print the effective value of a configuration without writing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ro.entry(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := e.Inspect(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <json>",
		Short: "Merge a JSON object into a configuration",
		Example: `  botkit configs set welcomer/welcome.yaml '{"welcomeChannelId":"123"}'`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := ro.entry(cmd, args[0])
			if err != nil {
				return err
			}

			var partial map[string]any
			if err := json.Unmarshal([]byte(args[1]), &partial); err != nil {
				return fmt.Errorf("value must be a JSON object: %w", err)
			}

			doc, err := e.UpdateDocument(cmd.Context(), partial)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	})

	return cmd
}

// renderTable writes data with its first row as header. Colors are kept only
// when w is a terminal.
func renderTable(w io.Writer, data pterm.TableData) error {
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		pterm.DisableColor()
		defer pterm.EnableColor()
	}

	table := pterm.DefaultTable.
		WithHasHeader().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)).
		WithData(data)
	rendered, err := table.Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = io.WriteString(w, rendered+"\n")
	return err
}

func (ro *rootOptions) entries(cmd *cobra.Command) ([]configuration.Entry, error) {
	reg, err := ro.Registry(cmd.Context())
	if err != nil {
		return nil, err
	}

	env := configuration.Environment{
		Dir:    ro.ConfigDir,
		Logger: zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger(),
	}
	entries := reg.Configurations()
	for _, e := range entries {
		e.Attach(env)
	}
	return entries, nil
}

func (ro *rootOptions) entry(cmd *cobra.Command, key string) (configuration.Entry, error) {
	entries, err := ro.entries(cmd)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Key() == key {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown configuration %q", key)
}
