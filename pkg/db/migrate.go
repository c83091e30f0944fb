package db

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"housekeeping/pkg/config"
)

const defaultMigrationsPath = "file://migrations"

// MigrateConfig applies all pending up migrations. It prefers DIRECT_URL so
// schema changes bypass a transaction pooler.
func MigrateConfig(migrationsPath string, cfg config.Config) error {
	if migrationsPath == "" {
		migrationsPath = defaultMigrationsPath
	}
	m, err := migrate.New(migrationsPath, migrationConnString(cfg))
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	}
	return nil
}

// MigrateDown rolls back n migrations; n <= 0 rolls back everything.
func MigrateDown(migrationsPath string, cfg config.Config, n int) error {
	if migrationsPath == "" {
		migrationsPath = defaultMigrationsPath
	}
	m, err := migrate.New(migrationsPath, migrationConnString(cfg))
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if n <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-n)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
