package store

import (
    "database/sql"
    "embed"
    "errors"
    "fmt"

    "github.com/golang-migrate/migrate/v4"
    pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
    "github.com/golang-migrate/migrate/v4/source/iofs"
    "github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies the embedded schema migrations to the database at dsn.
// It uses its own connection because closing a migrate instance closes the
// database handle it was given.
func Migrate(dsn string) error {
    db, err := sql.Open("pgx", dsn)
    if err != nil { return fmt.Errorf("migrate: open: %w", err) }
    drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
    if err != nil {
        db.Close()
        return fmt.Errorf("migrate: driver: %w", err)
    }
    src, err := iofs.New(migrationFS, "migrations")
    if err != nil {
        db.Close()
        return fmt.Errorf("migrate: source: %w", err)
    }
    m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
    if err != nil {
        db.Close()
        return fmt.Errorf("migrate: init: %w", err)
    }
    defer m.Close()

    if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
        return fmt.Errorf("migrate: up: %w", err)
    }
    v, dirty, _ := m.Version()
    log.Info().Uint("version", v).Bool("dirty", dirty).Msg("db migrated")
    return nil
}
