package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/northcloud/eventorch/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// postgresAlreadyExistsCode is the SQLSTATE golang-migrate surfaces for
// CREATE ... IF NOT EXISTS races and for objects created out of band; per
// §4.1 these must never fail the boot.
const postgresAlreadyExistsCode = "42710"

// Migrate runs every numbered migration forward, in order, tolerating
// "object already exists" so an older deployment that already ran a
// migration by hand does not block startup.
func Migrate(db *sqlx.DB, log logger.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrator: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("store: schema already up to date")
		} else if isAlreadyExists(err) {
			log.Warn("store: migration hit a pre-existing object, continuing", "error", err.Error())
		} else {
			return fmt.Errorf("store: apply migrations: %w", err)
		}
	}

	return extendEnums(db)
}

func isAlreadyExists(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == postgresAlreadyExistsCode || pqErr.Code == "42P07"
	}
	return false
}

// extendEnums re-applies enum value additions defensively on every boot,
// because an older deployment may have skipped the numbered migration that
// introduced a given value (§4.1).
func extendEnums(db *sqlx.DB) error {
	statements := []string{
		`ALTER TYPE run_status ADD VALUE IF NOT EXISTS 'queued'`,
		`ALTER TYPE run_status ADD VALUE IF NOT EXISTS 'running'`,
		`ALTER TYPE run_status ADD VALUE IF NOT EXISTS 'success'`,
		`ALTER TYPE run_status ADD VALUE IF NOT EXISTS 'partial'`,
		`ALTER TYPE run_status ADD VALUE IF NOT EXISTS 'error'`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil && !isBenignEnumError(err) {
			return fmt.Errorf("store: extend enum: %w", err)
		}
	}
	return nil
}

func isBenignEnumError(err error) bool {
	// ADD VALUE IF NOT EXISTS cannot run inside a transaction block on
	// older Postgres; treat that and "already a member" as non-fatal.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "25001" { // active_sql_transaction
		return true
	}
	return isAlreadyExists(err)
}
