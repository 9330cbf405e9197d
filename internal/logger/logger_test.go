package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestShardAndComponentTags(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Console: &buf, NoColor: true})

	ForShard(Component(l, "dispatcher"), 3).Info().Msg("synced")

	out := buf.String()
	assert.Contains(t, out, "synced")
	assert.Contains(t, out, "shard=3")
	assert.Contains(t, out, "component=dispatcher")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Console: &buf, NoColor: true})

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l := New(Options{Dir: dir, Console: &buf, NoColor: true})

	l.Info().Msg("to file")

	data, err := os.ReadFile(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
