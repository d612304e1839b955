package main

import (
	"errors"
	"flag"

	"collegeattend/internal/config"
	"collegeattend/internal/docstore"
	"collegeattend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	err = docstore.Migrate(cfg.DatabaseURL, *direction)
	switch {
	case errors.Is(err, docstore.ErrNoChange):
		logging.Info().Str("direction", *direction).Msg("schema already current")
	case err != nil:
		logging.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	default:
		logging.Info().Str("direction", *direction).Msg("migration applied")
	}
}
