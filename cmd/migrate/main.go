package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/noah-isme/checkout-api/internal/db"
	"github.com/noah-isme/checkout-api/internal/obs"
)

func main() {
	steps := flag.Int("steps", 1, "number of migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-steps n] up|down|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Only the database is needed here, so the full API config is not loaded.
	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"), "checkout-migrate")
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}

	switch flag.Arg(0) {
	case "up", "":
		if err := db.Up(databaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("schema up to date")
	case "down":
		if err := db.Down(databaseURL, *steps); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Int("steps", *steps).Msg("rolled back")
	case "version":
		v, dirty, err := db.Version(databaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("read version")
		}
		logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
	default:
		flag.Usage()
		os.Exit(2)
	}
}
