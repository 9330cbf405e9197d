package configuration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	Channel string   `json:"channel"`
	Message string   `json:"message"`
	Retries int      `json:"retries"`
	Tags    []string `json:"tags"`
	Embed   embed    `json:"embed"`
}

type embed struct {
	Enabled bool   `json:"enabled"`
	Color   string `json:"color"`
}

const greetingSchema = `
channel: string
message: string & !=""
retries: int & >=0
tags: [...string]
embed: {
	enabled: bool
	color:   =~"^#[0-9a-fA-F]{6}$"
}
`

func newGreeting(t *testing.T, format Format, addon string) (*Configuration[greeting], string) {
	t.Helper()
	c, err := New(Options[greeting]{
		Name:   "greeting",
		Format: format,
		Schema: greetingSchema,
		Defaults: greeting{
			Message: "hello",
			Retries: 1,
			Tags:    []string{},
			Embed:   embed{Color: "#ffffff"},
		},
		Addon: addon,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	c.Attach(Environment{Dir: dir, Logger: zerolog.Nop()})
	return c, dir
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestNewRejectsInvalidDefaults(t *testing.T) {
	_, err := New(Options[greeting]{
		Name:     "bad",
		Schema:   greetingSchema,
		Defaults: greeting{Message: "", Embed: embed{Color: "#ffffff"}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bad.json", verr.Key)
}

func TestKeyAndPath(t *testing.T) {
	c, dir := newGreeting(t, YAML, "welcomer")
	assert.Equal(t, "welcomer/greeting.yaml", c.Key())
	assert.Equal(t, filepath.Join(dir, "welcomer", "greeting.yml"), c.Path())

	plain, dir := newGreeting(t, JSON, "")
	assert.Equal(t, "greeting.json", plain.Key())
	assert.Equal(t, filepath.Join(dir, "greeting.json"), plain.Path())
}

func TestLoadCreatesFileWithDefaults(t *testing.T) {
	c, _ := newGreeting(t, JSON, "welcomer")
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))

	doc := readDoc(t, c.Path())
	assert.Equal(t, "hello", doc["message"])
	assert.Equal(t, c.Defaults(), c.Get(ctx))
}

func TestLoadIsIdempotent(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))
	info, err := os.Stat(c.Path())
	require.NoError(t, err)

	// Make a second write observable through the modification time.
	old := info.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(c.Path(), old, old))

	first := c.Get(ctx)
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, first, c.Get(ctx))

	info, err = os.Stat(c.Path())
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "file must not be rewritten")
}

func TestLoadDoesNotRewriteEquivalentContent(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	// Same values as the defaults, different key order and spacing.
	content := `{"tags":[],"embed":{"color":"#ffffff","enabled":false},"retries":1,"message":"hello","channel":""}`
	require.NoError(t, os.WriteFile(c.Path(), []byte(content), 0644))

	require.NoError(t, c.Load(ctx))

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestLoadSelfHealsMissingKeys(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	require.NoError(t, os.WriteFile(c.Path(), []byte(`{"message":"hi there","embed":{"enabled":true}}`), 0644))

	require.NoError(t, c.Load(ctx))

	doc := readDoc(t, c.Path())
	assert.Equal(t, "hi there", doc["message"])
	assert.Equal(t, float64(1), doc["retries"])
	assert.Equal(t, map[string]any{"enabled": true, "color": "#ffffff"}, doc["embed"])

	got := c.Get(ctx)
	assert.Equal(t, "hi there", got.Message)
	assert.True(t, got.Embed.Enabled)
	assert.Equal(t, "#ffffff", got.Embed.Color)
}

func TestInvalidFileFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"schema violation", `{"retries":-3}`},
		{"unknown field", `{"colour":"red"}`},
		{"malformed", `{"message":`},
		{"not an object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newGreeting(t, JSON, "")
			ctx := context.Background()
			require.NoError(t, os.WriteFile(c.Path(), []byte(tt.content), 0644))

			require.NoError(t, c.Load(ctx))
			assert.Equal(t, c.Defaults(), c.Get(ctx))

			data, err := os.ReadFile(c.Path())
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data), "an invalid file is left untouched")
		})
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	_, err := c.Update(ctx, map[string]any{"channel": "123", "embed": map[string]any{"enabled": true}})
	require.NoError(t, err)

	got, err := c.Update(ctx, map[string]any{"tags": []any{"a", "b"}})
	require.NoError(t, err)

	want := greeting{
		Channel: "123",
		Message: "hello",
		Retries: 1,
		Tags:    []string{"a", "b"},
		Embed:   embed{Enabled: true, Color: "#ffffff"},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, c.Get(ctx))

	doc := readDoc(t, c.Path())
	assert.Equal(t, "123", doc["channel"])
	assert.Equal(t, []any{"a", "b"}, doc["tags"])
}

func TestUpdateReplacesArraysWholesale(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	_, err := c.Update(ctx, map[string]any{"tags": []any{"a", "b", "c"}})
	require.NoError(t, err)
	got, err := c.Update(ctx, map[string]any{"tags": []any{"z"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"z"}, got.Tags)
}

func TestInvalidUpdateHasNoSideEffects(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))
	before, err := os.ReadFile(c.Path())
	require.NoError(t, err)

	tests := []map[string]any{
		{"retries": -1},
		{"retries": "many"},
		{"unknown": true},
		{"embed": map[string]any{"color": "red"}},
	}
	for _, partial := range tests {
		_, err := c.Update(ctx, partial)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "partial %v", partial)
		assert.Equal(t, "greeting.json", verr.Key)
	}

	after, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Equal(t, c.Defaults(), c.Get(ctx))
}

func TestSet(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	v := greeting{Channel: "9", Message: "yo", Retries: 4, Tags: []string{"x"}, Embed: embed{Color: "#000000"}}
	got, err := c.Set(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.Equal(t, v, c.Get(ctx))
}

func TestReloadPicksUpExternalChanges(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	require.NoError(t, c.Load(ctx))
	require.NoError(t, os.WriteFile(c.Path(), []byte(`{"message":"edited"}`), 0644))

	require.NoError(t, c.Load(ctx))
	assert.Equal(t, "hello", c.Get(ctx).Message, "load keeps the cache")

	require.NoError(t, c.Reload(ctx))
	assert.Equal(t, "edited", c.Get(ctx).Message)
}

func TestYAMLFormat(t *testing.T) {
	c, dir := newGreeting(t, YAML, "welcomer")
	ctx := context.Background()

	path := filepath.Join(dir, "welcomer", "greeting.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("message: from yaml\nretries: 3\n"), 0644))

	got := c.Get(ctx)
	assert.Equal(t, "from yaml", got.Message)
	assert.Equal(t, 3, got.Retries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "color:", "missing keys are healed in YAML too")
	assert.Contains(t, string(data), "#ffffff")
}

func TestUpdateDocument(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	ctx := context.Background()

	doc, err := c.UpdateDocument(ctx, map[string]any{"retries": 2})
	require.NoError(t, err)
	assert.Equal(t, float64(2), doc["retries"])
	assert.Equal(t, "hello", doc["message"])

	_, err = c.UpdateDocument(ctx, map[string]any{"retries": -2})
	assert.True(t, errors.As(err, new(*ValidationError)))
}

func TestGetWithoutAttachUsesDefaultDir(t *testing.T) {
	c, err := New(Options[greeting]{
		Name:     "greeting",
		Schema:   greetingSchema,
		Defaults: greeting{Message: "hello", Tags: []string{}, Embed: embed{Color: "#ffffff"}},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir, "greeting.json"), c.Path())
}

type scale struct {
	Ratio float64 `json:"ratio"`
	Steps int     `json:"steps"`
}

func TestFloatFieldsAcceptWholeNumbers(t *testing.T) {
	c, err := New(Options[scale]{
		Name:     "scale",
		Format:   YAML,
		Schema:   "ratio: float & >0\nsteps: int",
		Defaults: scale{Ratio: 1.0, Steps: 3},
	})
	require.NoError(t, err)
	c.Attach(Environment{Dir: t.TempDir(), Logger: zerolog.Nop()})
	ctx := context.Background()

	require.NoError(t, os.WriteFile(c.Path(), []byte("ratio: 2.0\nsteps: 4\n"), 0644))
	require.NoError(t, c.Load(ctx))
	assert.Equal(t, scale{Ratio: 2, Steps: 4}, c.Get(ctx))

	got, err := c.Update(ctx, map[string]any{"ratio": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Ratio)

	got, err = c.Update(ctx, map[string]any{"ratio": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Ratio)

	_, err = c.Update(ctx, map[string]any{"steps": 1.5})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "an int field still rejects fractions")
}

func TestConcurrentFirstGetLoadsOnce(t *testing.T) {
	c, _ := newGreeting(t, JSON, "")
	require.NoError(t, os.WriteFile(c.Path(), []byte(`{"retries":-3}`), 0644))

	var logs bytes.Buffer
	c.Attach(Environment{Dir: filepath.Dir(c.Path()), Logger: zerolog.New(&logs)})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, c.Defaults(), c.Get(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, strings.Count(logs.String(), "Error loading config file"))
}
