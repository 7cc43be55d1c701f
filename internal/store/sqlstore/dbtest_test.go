package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/store/sqlstore"
)

// forEachDialect runs fn against a fresh SQLite file and, outside short mode,
// a Postgres container. Each database has the schema applied.
func forEachDialect(t *testing.T, fn func(t *testing.T, db *sqlx.DB)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteDB(t))
	})
	t.Run("postgres", func(t *testing.T) {
		fn(t, newPostgresDB(t))
	})
}

func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "auction.db")}
	db, err := sqlstore.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("applying migration: %v", err)
	}
	return db
}

// newPostgresDB starts a Postgres container, applies the migration, and
// returns a connected *sqlx.DB. The container is terminated when the test
// ends.
func newPostgresDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("auction_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlstore.Migrate(ctx, db); err != nil {
		t.Fatalf("applying migration: %v", err)
	}
	return db
}
