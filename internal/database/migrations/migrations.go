package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// MigrateUp applies all pending migrations. A database that is already
// current is not an error.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close db, which the caller owns.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// CheckDBMigrationStatus returns nil when the schema is at the latest
// embedded version, and an error describing the mismatch otherwise.
func CheckDBMigrationStatus(db *sql.DB) error {
	version, latest, err := Status(db)
	if err != nil {
		return err
	}

	switch {
	case version < latest:
		return fmt.Errorf("local store is at version %d but latest is %d (%d migrations behind)",
			version, latest, latest-version)
	case version > latest:
		return fmt.Errorf("local store version %d is ahead of binary version %d (binary needs update)",
			version, latest)
	}
	return nil
}

// Status reports the applied schema version and the latest embedded version.
func Status(db *sql.DB) (version uint, latest uint, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, 0, fmt.Errorf("local store has no schema version (needs migration)")
		}
		return 0, 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	if dirty {
		return version, 0, fmt.Errorf("local store is in dirty state at version %d (migration failed previously)", version)
	}

	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return version, 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()

	latest, err = latestVersion(src)
	if err != nil {
		return version, 0, fmt.Errorf("failed to determine latest version: %w", err)
	}
	return version, latest, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// latestVersion walks the source to its last migration.
func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next fails once there are no more migrations.
			return v, nil
		}
		v = next
	}
}
