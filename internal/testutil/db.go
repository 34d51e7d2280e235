package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/vrsandeep/vidl/internal/db"
	"github.com/vrsandeep/vidl/migrations"
)

// SetupTestDB creates a SQLite database file in a temporary directory and
// applies all migrations. A file is used rather than :memory: so every
// connection of the pool sees the same database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "vidl-test.sqlite3"), 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Attach a cleanup function to automatically close the DB when the test completes.
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, migrations.FS, nil); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return database
}
