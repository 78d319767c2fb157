package main

import (
	"os"

	"github.com/spf13/pflag"

	"mfmc/core-go/internal/config"
	"mfmc/core-go/internal/db/migrate"
	"mfmc/core-go/internal/logging"
)

func main() {
	direction := pflag.String("direction", "up", "migration direction: up or down")
	pflag.Parse()

	logger := logging.New(os.Stdout, "mfmc-migrate", "info")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
