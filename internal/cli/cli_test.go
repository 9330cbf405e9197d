package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/internal/dispatcher"
	"github.com/keshon/botkit/internal/registry"
)

type settings struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit"`
}

type fakeRemote struct {
	appID  string
	pushed []*discordgo.ApplicationCommand
}

func (f *fakeRemote) ApplicationCommandBulkOverwrite(appID, _ string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.appID = appID
	f.pushed = cmds
	return cmds, nil
}

type harness struct {
	dir    string
	cache  string
	remote *fakeRemote
	opts   Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{dir: t.TempDir(), remote: &fakeRemote{}}
	h.cache = filepath.Join(h.dir, "cache.json")

	cfg := configuration.MustNew(configuration.Options[settings]{
		Name:     "settings",
		Schema:   "channel: string\nlimit: int & >=0",
		Defaults: settings{Limit: 5},
		Addon:    "demo",
	})
	ping := command.New(&discordgo.ApplicationCommand{Name: "ping", Description: "pong"}).Build()

	h.opts = Options{
		Registry: func(context.Context) (*registry.Registry, error) {
			r := registry.New(zerolog.Nop())
			return r, r.Register(registry.CommandUnit{Command: ping}, registry.ConfigurationUnit{Configuration: cfg})
		},
		Connect: func(context.Context) (dispatcher.Remote, string, error) {
			return h.remote, "app-1", nil
		},
		ConfigDir:    filepath.Join(h.dir, "configs"),
		CommandCache: h.cache,
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(h.opts)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigsListShowSet(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "configs", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"KEY", "|", "PATH", "|", "MODIFIED"}, strings.Fields(lines[0]))
	row := lines[len(lines)-1]
	assert.Contains(t, row, "demo/settings.json")
	assert.Contains(t, row, "missing")
	assert.NotContains(t, out, "\x1b[", "no color codes outside a terminal")

	out, err = h.run(t, "configs", "set", "demo/settings.json", `{"channel":"c1"}`)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "c1", doc["channel"])
	assert.Equal(t, float64(5), doc["limit"])

	out, err = h.run(t, "configs", "show", "demo/settings.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"c1","limit":5}`, out)

	out, err = h.run(t, "--format", "json", "configs", "list")
	require.NoError(t, err)
	var infos []configInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Exists)
	assert.NotEmpty(t, infos[0].Modified)
}

func TestConfigsShowDoesNotCreateFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.opts.ConfigDir, "demo", "settings.json")

	out, err := h.run(t, "configs", "show", "demo/settings.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"","limit":5}`, out)
	assert.NoFileExists(t, path)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"limit":-3}`), 0o644))
	out, err = h.run(t, "configs", "show", "demo/settings.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"channel":"","limit":5}`, out, "invalid file shows the defaults")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"limit":-3}`, string(raw))
}

func TestConfigsSetRejectsInvalidValues(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "configs", "set", "demo/settings.json", `{"limit":-1}`)
	assert.Error(t, err)

	_, err = h.run(t, "configs", "set", "demo/settings.json", `not json`)
	assert.ErrorContains(t, err, "JSON object")

	_, err = h.run(t, "configs", "show", "nope.json")
	assert.ErrorContains(t, err, "unknown configuration")
}

func TestCommandsDiffAndSync(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "commands", "diff")
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshot")
	assert.Contains(t, out, "added: ping")

	out, err = h.run(t, "commands", "sync")
	require.NoError(t, err)
	assert.Equal(t, "Pushed 1 commands\n", out)
	assert.Equal(t, "app-1", h.remote.appID)
	require.Len(t, h.remote.pushed, 1)

	out, err = h.run(t, "--format", "json", "commands", "diff")
	require.NoError(t, err)
	var diff dispatcher.Diff
	require.NoError(t, json.Unmarshal([]byte(out), &diff))
	assert.False(t, diff.Changed())
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--format", "xml", "configs", "list")
	assert.ErrorContains(t, err, "invalid format")
}
