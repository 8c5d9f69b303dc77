package main

import (
	"flag"
	"os"

	"github.com/reviewlens/reviewlens/internal/database"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure zerolog for pretty console output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Parse command line flags
	var (
		command      string
		steps        int
		warehouseURL string
	)

	flag.StringVar(&command, "command", "up", "Migration command: up, down, version")
	flag.IntVar(&steps, "steps", 1, "Number of migrations to roll back with down")
	flag.StringVar(&warehouseURL, "warehouse", "", "Warehouse URL (overrides WAREHOUSE_URL env)")
	flag.Parse()

	// Get warehouse URL from environment if not provided
	if warehouseURL == "" {
		warehouseURL = os.Getenv("WAREHOUSE_URL")
	}
	if warehouseURL == "" {
		log.Fatal().Msg("WAREHOUSE_URL environment variable or -warehouse flag is required")
	}

	log.Info().
		Str("command", command).
		Int("steps", steps).
		Msg("Starting migration")

	var err error
	switch command {
	case "up":
		err = database.RunMigrations(warehouseURL)
	case "down":
		if steps < 1 {
			log.Fatal().Int("steps", steps).Msg("Down command requires -steps >= 1")
		}
		err = database.RollbackMigration(warehouseURL, steps)
	case "version":
		version, dirty, verr := database.MigrationVersion(warehouseURL)
		if verr != nil {
			log.Fatal().Err(verr).Msg("Failed to get version")
		}
		if version == 0 {
			log.Info().Msg("No migrations have been applied yet")
			return
		}
		log.Info().
			Uint("version", version).
			Bool("dirty", dirty).
			Msg("Current migration version")
		return
	default:
		log.Fatal().Str("command", command).Msg("Unknown command")
	}

	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migration completed successfully")
}
