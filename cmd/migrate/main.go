// Package main provides a CLI tool for the paper analysis database schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/config"
	"github.com/helixir/paper-analysis-service/internal/database"
	"github.com/helixir/paper-analysis-service/internal/observability"
)

type action struct {
	name string
	run  func(m *database.Migrator, logger zerolog.Logger) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	up := flag.Bool("up", false, "Apply all pending migrations")
	down := flag.Bool("down", false, "Roll back all migrations")
	steps := flag.Int("steps", 0, "Apply N migration steps (positive=up, negative=down)")
	version := flag.Bool("version", false, "Print the current schema version")
	force := flag.Int("force", -1, "Force the schema version after a failed migration")
	migrationsPath := flag.String("path", "", "Override the migrations directory")
	flag.Parse()

	var actions []action
	if *up {
		actions = append(actions, action{"up", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Up()
		}})
	}
	if *down {
		actions = append(actions, action{"down", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Msg("dropping every table of the paper analysis schema")
			return m.Down()
		}})
	}
	if *steps != 0 {
		n := *steps
		actions = append(actions, action{"steps", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Steps(n)
		}})
	}
	if *version {
		actions = append(actions, action{"version", func(*database.Migrator, zerolog.Logger) error {
			return nil
		}})
	}
	if *force >= 0 {
		v := *force
		actions = append(actions, action{"force", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Force(v)
		}})
	}

	switch len(actions) {
	case 0:
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
		return errors.New("no action specified")
	case 1:
	default:
		return errors.New("specify only one action at a time")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	dir := cfg.Database.MigrationPath
	if *migrationsPath != "" {
		dir = *migrationsPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	act := actions[0]
	logger.Info().Str("action", act.name).Str("path", dir).Msg("running migration action")
	if err := act.run(migrator, logger); err != nil {
		return fmt.Errorf("migrate %s: %w", act.name, err)
	}
	logVersion(migrator, logger)
	return nil
}

func logVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current schema version")
}
