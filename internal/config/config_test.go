package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Empty(t, cfg.DiscordGuildID)
	assert.False(t, cfg.Sharding)
	assert.True(t, cfg.Shards.Auto())
	assert.Equal(t, "configs", cfg.ConfigDir)
	assert.Equal(t, "cache.json", cfg.CommandCache)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadSharding(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_GUILD_ID", "123")
	t.Setenv("DISCORD_SHARDING", "true")
	t.Setenv("DISCORD_SHARDS", "4")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123", cfg.DiscordGuildID)
	assert.True(t, cfg.Sharding)
	assert.Equal(t, ShardCount(4), cfg.Shards)
	assert.Equal(t, "4", cfg.Shards.String())
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, _, err := Load()
	assert.Error(t, err)
}

func TestShardCountUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    ShardCount
		wantErr bool
	}{
		{in: "auto", want: 0},
		{in: "AUTO", want: 0},
		{in: "", want: 0},
		{in: "2", want: 2},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var s ShardCount
			err := s.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}
