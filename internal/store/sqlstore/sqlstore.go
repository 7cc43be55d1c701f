// Package sqlstore provides store.Drivers backed by Postgres (lib/pq) and
// SQLite (mattn/go-sqlite3), both accessed through sqlx with OTEL
// instrumentation via otelsql.
//
// Queries are written with ? placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

//go:embed migrations
var migrations embed.FS

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("postgres", open)
	store.Register("sqlite", open)
}

// open is the store.Driver for both SQL backends.
func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewRepositories(db, clk), nil
}

// NewRepositories wires every repository to db.
func NewRepositories(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Players:      NewPlayerRepo(db),
		Rooms:        NewRoomRepo(db, clk),
		Participants: NewParticipantRepo(db, clk),
		Ledger:       NewLedgerRepo(db, clk),
		Chat:         NewChatRepo(db, clk),
		Events:       NewEventStore(db),
		Closer:       closerFunc(db.Close),
		Ping:         db.PingContext,
	}
}

// Connect opens and verifies a database connection for cfg.Driver
// ("postgres" or "sqlite") with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver, system := driverPostgres, semconv.DBSystemPostgreSQL
	if cfg.Driver == "sqlite" {
		driver, system = driverSQLite, semconv.DBSystemSqlite
	}

	sqlDB, err := otelsql.Open(driver, cfg.DSN(),
		otelsql.WithAttributes(system, attribute.String("db.name", cfg.DBName)),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// sqlx infers the placeholder style from the name, not from otelsql's
	// wrapper driver.
	db := sqlx.NewDb(sqlDB, driver)
	if driver == driverSQLite {
		// SQLite allows one writer; a single connection keeps transactions
		// from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema for db's dialect. Every statement is
// idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dir := "migrations/postgres"
	if db.DriverName() == driverSQLite {
		dir = "migrations/sqlite"
	}

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	for _, e := range entries {
		data, err := migrations.ReadFile(dir + "/" + e.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", e.Name(), err)
		}
		if _, err := db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("applying migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure in either dialect.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// forUpdate returns the row-lock suffix for dialects that support it.
func forUpdate(db *sqlx.DB) string {
	if db.DriverName() == driverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
