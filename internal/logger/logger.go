// Package logger builds the process logger: a human readable console stream
// plus a size-rotated file under the log directory.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level string
	// Dir receives latest.log and its rotated archives. Empty disables the file sink.
	Dir string
	// Console defaults to os.Stdout.
	Console io.Writer
	// NoColor disables ANSI colors on the console sink.
	NoColor bool
}

// New returns a logger writing to the console and, when Dir is set, to a
// rotating file. An unknown level falls back to info.
func New(opts Options) zerolog.Logger {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "03:04:05 PM",
		NoColor:    opts.NoColor,
	}}

	if opts.Dir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "latest.log"),
			MaxSize:    20, // MB
			MaxAge:     1,  // days
			MaxBackups: 24,
			Compress:   true,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ForShard tags every entry with the gateway shard that produced it.
func ForShard(l zerolog.Logger, shardID int) zerolog.Logger {
	return l.With().Int("shard", shardID).Logger()
}

// ForManager tags entries from the process that supervises shards.
func ForManager(l zerolog.Logger) zerolog.Logger {
	return l.With().Str("shard", "manager").Logger()
}

// Component tags entries with the subsystem that emits them.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Nop returns a logger that discards everything; handy in tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
