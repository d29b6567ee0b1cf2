// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package account

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/tomtom215/storeguard/internal/logging"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DBConfig holds connection settings.
type DBConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Open connects and verifies the database. SQLite is limited to one open
// connection so in-memory databases are shared and writers never contend.
func Open(ctx context.Context, cfg DBConfig) (*sqlx.DB, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		return db, nil
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Migrate applies all pending embedded migrations for the connected driver.
// PostgreSQL migrations run on a dedicated handle opened from dsn, which the
// migrator closes; SQLite reuses db so in-memory databases see the schema.
func Migrate(db *sqlx.DB, dsn string) error {
	var (
		dir      string
		dbDriver database.Driver
		err      error
	)

	switch db.DriverName() {
	case DriverPostgres:
		dir = "migrations/postgres"
		raw, openErr := sql.Open(DriverPostgres, dsn)
		if openErr != nil {
			return fmt.Errorf("open migration handle: %w", openErr)
		}
		dbDriver, err = migratepgx.WithInstance(raw, &migratepgx.Config{})
		if err != nil {
			_ = raw.Close()
		}
	case DriverSQLite:
		dir = "migrations/sqlite"
		dbDriver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), dbDriver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if db.DriverName() == DriverPostgres {
		defer m.Close()
	} else {
		// Closing the sqlite driver would close db.
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logging.Info().Str("driver", db.DriverName()).Uint("version", version).Bool("dirty", dirty).Msg("Database migrations applied")
	return nil
}
