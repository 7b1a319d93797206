// Package pg provides optional Postgres-backed alternatives to the JSON
// file stores in internal/sessions, internal/cron, and internal/pairing.
// No config value selects them; the gateway always uses the file stores.
package pg

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to dsn via the pgx stdlib driver and applies any pending
// migrations before returning.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := migrate1(db.DB, dsn); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate1(db *sql.DB, dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("pg: migration source: %w", err)
	}
	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("pg: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return fmt.Errorf("pg: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("pg: migrate up: %w", err)
	}
	return nil
}
