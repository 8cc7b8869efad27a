// migrate applies or rolls back the embedded SQL migrations against DATABASE_URL.
//
//	go run ./cmd/migrate                  # all pending up migrations
//	go run ./cmd/migrate -direction down  # roll everything back
//	go run ./cmd/migrate -steps -1        # roll back one migration
//	go run ./cmd/migrate -version         # print the current version
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/config"
	"outreach-tracker/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply n migrations (negative rolls back); overrides -direction")
	version := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	switch {
	case *version:
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("read version", zap.Error(err))
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return
	case *steps != 0:
		err = migrate.Steps(cfg.DatabaseURL, *steps, logger)
	default:
		err = migrate.Run(cfg.DatabaseURL, *direction, logger)
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no change")
			return
		}
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("migrations applied")
}
