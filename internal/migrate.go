package internal

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Schema for the quota subsystem: accounts with their monthly counters,
// job applications, window counter rows and the usage ledger.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the database schema up to date at boot. The server
// refuses to start on a failed migration rather than serve against a
// stale schema.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
