package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/offerrules/internal/config"
	"github.com/liamcoop/offerrules/internal/logger"
)

func main() {
	var (
		configPath     string
		databaseURL    string
		migrationsPath string
		command        string
	)

	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	flag.StringVar(&databaseURL, "database", "", "Database URL (overrides DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (overrides MIGRATIONS_PATH)")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	if migrationsPath != "" {
		cfg.MigrationsPath = migrationsPath
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal("database URL is required, use -database flag or DATABASE_URL environment variable")
	}

	if err := run(cfg, command, flag.Args()); err != nil {
		logger.Fatal("migration failed", "command", command, "error", err)
	}
}

func run(cfg config.Config, command string, args []string) error {
	logger.Info("connecting to database", "migrations_path", cfg.MigrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", cfg.MigrationsPath), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}

	return nil
}
