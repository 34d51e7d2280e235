package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"go.uber.org/zap"

	// Import the sqlite3 driver. The blank import is used because we only
	// need the driver to be registered with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

// DSN builds the connection string for the database file at path. Every
// connection of the pool gets foreign keys, a busy timeout and BEGIN IMMEDIATE
// transactions so writers queue on the lock instead of failing on upgrade.
func DSN(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d&_txlock=immediate&_journal_mode=WAL",
		path, busyTimeout.Milliseconds())
}

// InitDB opens a connection to the SQLite database at the specified path
// and ensures the connection is valid.
func InitDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Ping the database to verify the connection is alive.
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// RunMigrations applies every pending migration found in migrationsFS, in
// ascending order. Each migration runs in its own transaction. A dirty marker
// left behind by an interrupted run is reset to the previous version first, so
// the interrupted migration is applied again.
func RunMigrations(database *sql.DB, migrationsFS fs.FS, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := httpfs.New(http.FS(migrationsFS), ".")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(database, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		target := -1
		if prev, err := src.Prev(version); err == nil {
			target = int(prev)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to find migration before %d: %w", version, err)
		}
		logger.Warn("Schema is dirty, re-applying interrupted migration",
			zap.Uint("version", version), zap.Int("reset_to", target))
		if err := m.Force(target); err != nil {
			return fmt.Errorf("failed to reset dirty schema version: %w", err)
		}
	}

	logger.Info("Applying database migrations from embedded files...")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("an error occurred while applying migrations: %w", err)
	}

	current, _ := SchemaVersion(database)
	logger.Info("Migrations applied successfully.", zap.Uint("schema_version", current))
	return nil
}

// SchemaVersion returns the version of the last applied migration, or 0 for a
// database that has never been migrated.
func SchemaVersion(database *sql.DB) (uint, error) {
	var version int64
	var dirty bool
	err := database.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return uint(version), fmt.Errorf("schema version %d is dirty", version)
	}
	return uint(version), nil
}
