// Command build-readme regenerates README.md from README.md.tmpl and the
// registered commands.
package main

import (
	"context"
	"os"

	"github.com/keshon/botkit/internal/app"
	"github.com/keshon/botkit/internal/docs"
	"github.com/keshon/botkit/internal/logger"
)

func main() {
	log := logger.New(logger.Options{Level: "info"})

	reg, err := app.Registry(context.Background(), logger.Nop())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble commands")
	}

	changed, err := docs.UpdateReadme("README.md.tmpl", "README.md", app.Name, reg.Commands())
	if err != nil {
		log.Error().Err(err).Msg("Failed to update README.md")
		os.Exit(1)
	}
	if changed {
		log.Info().Msg("README.md updated with current commands")
	} else {
		log.Info().Msg("README.md is up to date")
	}
}
