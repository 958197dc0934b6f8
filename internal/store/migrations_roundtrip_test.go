package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testDatabaseEnv = "LEDGERBOARD_TEST_DATABASE_URL"

// openTestDB returns a database with a fresh public schema and every
// migration applied, or skips when no test database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(testDatabaseEnv))
	if dsn == "" {
		t.Skip(testDatabaseEnv + " is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, PoolOptions{})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations"), zerolog.Nop()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	again, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reapply migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no pending migrations, got %v", again)
	}

	rolledBack, err := RollbackMigrations(ctx, db, migrationsDir, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if len(rolledBack) == 0 {
		t.Fatal("expected down migrations to run")
	}

	reapplied, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	if len(reapplied) != len(rolledBack) {
		t.Fatalf("reapplied %d migrations, rolled back %d", len(reapplied), len(rolledBack))
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
