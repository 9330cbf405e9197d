// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ShardCount is the DISCORD_SHARDS value: a positive number or "auto" (zero).
type ShardCount int

// Auto reports whether the gateway should pick the shard count.
func (s ShardCount) Auto() bool { return s == 0 }

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (s *ShardCount) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" || strings.EqualFold(raw, "auto") {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("shard count must be \"auto\" or a number: %w", err)
	}
	if n < 1 {
		return errors.New("shard count must be at least 1")
	}
	*s = ShardCount(n)
	return nil
}

func (s ShardCount) String() string {
	if s.Auto() {
		return "auto"
	}
	return strconv.Itoa(int(s))
}

type Config struct {
	DiscordToken   string     `env:"DISCORD_TOKEN,required,notEmpty"`
	DiscordGuildID string     `env:"DISCORD_GUILD_ID"`
	Sharding       bool       `env:"DISCORD_SHARDING" envDefault:"false"`
	Shards         ShardCount `env:"DISCORD_SHARDS" envDefault:"auto"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDir   string `env:"LOG_DIR" envDefault:"logs"`

	ConfigDir    string `env:"CONFIG_DIR" envDefault:"configs"`
	CommandCache string `env:"COMMAND_CACHE" envDefault:"cache.json"`
}

// Load reads an optional .env file and parses the environment. The returned
// bool reports whether a .env file was found, so the caller can log it once a
// logger exists.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, dotenv, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return &cfg, dotenv, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return errors.New("CONFIG_DIR must not be empty")
	}
	if c.CommandCache == "" {
		return errors.New("COMMAND_CACHE must not be empty")
	}
	return nil
}
