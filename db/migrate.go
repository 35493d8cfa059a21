package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// findMigrationsPath locates the db/migrations directory relative to common
// working directories (repo root, package dir, container workdir).
func findMigrationsPath() (string, error) {
	candidates := []string{"db/migrations", "migrations", "./db/migrations"}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return "", fmt.Errorf("resolve migrations path %s: %w", p, err)
			}
			return "file://" + abs, nil
		}
	}
	return "", fmt.Errorf("migrations directory not found in %v", candidates)
}

// RunMigrations applies all pending versioned migrations from db/migrations.
// Idempotent; returns an error when the schema_migrations table reports a dirty
// state, which needs manual intervention.
func RunMigrations(db *sql.DB) error {
	path, err := findMigrationsPath()
	if err != nil {
		return err
	}
	return RunMigrationsFromPath(db, path)
}

// RunMigrationsFromPath runs migrations from a custom source URL (useful in tests).
func RunMigrationsFromPath(db *sql.DB, sourceURL string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("error", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}
	slog.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.String("component", "db_migrate"))
	return nil
}
