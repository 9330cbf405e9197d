package addon

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/internal/configuration"
	"github.com/keshon/botkit/internal/registry"
)

type settings struct {
	On bool `json:"on"`
}

func manifest() Manifest {
	return Manifest{ID: "greeter", Name: "Greeter", Version: "1.2.0", Author: "me"}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
		err    string
	}{
		{"valid", func(*Manifest) {}, ""},
		{"bad id", func(m *Manifest) { m.ID = "Bad ID" }, "must be lowercase"},
		{"no name", func(m *Manifest) { m.Name = " " }, "name is required"},
		{"loose version", func(m *Manifest) { m.Version = "v1" }, "invalid version"},
		{"bad constraint", func(m *Manifest) { m.Requires = ">>1" }, "invalid host constraint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifest()
			tt.mutate(&m)
			err := m.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.err)
		})
	}
}

func TestInstallRegistersUnits(t *testing.T) {
	cfg, err := configuration.New(configuration.Options[settings]{
		Name: "settings", Schema: "on: bool", Addon: "greeter",
	})
	require.NoError(t, err)
	cmd := command.New(&discordgo.ApplicationCommand{Name: "greet", Description: "g"}).Build()

	a := New(manifest(), func(context.Context) ([]registry.Unit, error) {
		return []registry.Unit{registry.CommandUnit{Command: cmd}, registry.ConfigurationUnit{Configuration: cfg}}, nil
	})

	r := registry.New(zerolog.Nop())
	require.NoError(t, Install(context.Background(), r, semver.MustParse("1.0.0"), zerolog.Nop(), a))

	assert.Same(t, cmd, r.Command("greet"))
	assert.NotNil(t, r.Configuration("greeter/settings.json"))
}

func TestInstallRejectsForeignConfiguration(t *testing.T) {
	cfg, err := configuration.New(configuration.Options[settings]{Name: "settings", Schema: "on: bool"})
	require.NoError(t, err)

	a := New(manifest(), func(context.Context) ([]registry.Unit, error) {
		return registry.Configurations(cfg), nil
	})
	err = Install(context.Background(), registry.New(zerolog.Nop()), nil, zerolog.Nop(), a)
	assert.ErrorContains(t, err, "must be declared with Addon")
}

func TestInstallChecksHostVersion(t *testing.T) {
	m := manifest()
	m.Requires = ">= 2.0.0"
	a := New(m, func(context.Context) ([]registry.Unit, error) { return nil, nil })

	err := Install(context.Background(), registry.New(zerolog.Nop()), semver.MustParse("1.5.0"), zerolog.Nop(), a)
	assert.ErrorIs(t, err, ErrIncompatible)

	err = Install(context.Background(), registry.New(zerolog.Nop()), semver.MustParse("2.1.0"), zerolog.Nop(), a)
	assert.NoError(t, err)
}

func TestInstallRejectsDuplicatesAndLoaderErrors(t *testing.T) {
	empty := func(context.Context) ([]registry.Unit, error) { return nil, nil }
	err := Install(context.Background(), registry.New(zerolog.Nop()), nil, zerolog.Nop(),
		New(manifest(), empty), New(manifest(), empty))
	assert.ErrorContains(t, err, "declared twice")

	boom := errors.New("boom")
	err = Install(context.Background(), registry.New(zerolog.Nop()), nil, zerolog.Nop(),
		New(manifest(), func(context.Context) ([]registry.Unit, error) { return nil, boom }))
	assert.ErrorIs(t, err, boom)
}
