package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending schema migration for the store's driver
func (s *Store) Migrate() error {
	srcDriver, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("init iofs: %w", err)
	}

	var m *migrate.Migrate
	switch s.driver {
	case DriverPostgres:
		// the postgres driver pins a connection and closes its *sql.DB on Close
		sqlDB, err := sql.Open(DriverPostgres, s.dsn)
		if err != nil {
			return fmt.Errorf("open sql db: %w", err)
		}
		dbDriver, err := pgmigrate.WithInstance(sqlDB, &pgmigrate.Config{})
		if err != nil {
			sqlDB.Close()
			return fmt.Errorf("init db driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
		if err != nil {
			sqlDB.Close()
			return fmt.Errorf("init migrate: %w", err)
		}
		defer m.Close()
	case DriverSQLite:
		dbDriver, err := sqlitemigrate.WithInstance(s.db.DB, &sqlitemigrate.Config{})
		if err != nil {
			return fmt.Errorf("init db driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", srcDriver, "sqlite", dbDriver)
		if err != nil {
			return fmt.Errorf("init migrate: %w", err)
		}
		// sqlite shares the store's pool, which m.Close would close
		defer srcDriver.Close()
	default:
		return fmt.Errorf("unsupported driver %q", s.driver)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("migrate up: %w (hint: ensure every migration version has both `.up.sql` and `.down.sql`)", err)
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
