package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/txiso/internal/store"
)

// PostgresDSNEnv enables tests against a live Postgres server.
const PostgresDSNEnv = "TXISO_TEST_POSTGRES_DSN"

// MemoryStore returns a migrated in-process store closed at test end.
func MemoryStore(t testing.TB) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SQLiteStore returns a migrated file-backed SQLite store in t.TempDir().
func SQLiteStore(t testing.TB) *store.SQLStore {
	t.Helper()
	return openMigrated(t, store.DriverSQLite, filepath.Join(t.TempDir(), "txiso.db"))
}

// PostgresStore returns a migrated Postgres store, or skips the test when
// TXISO_TEST_POSTGRES_DSN is unset.
func PostgresStore(t testing.TB, driver string) *store.SQLStore {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	return openMigrated(t, driver, dsn)
}

func openMigrated(t testing.TB, driver, dsn string) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, driver, dsn, store.Options{})
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate %s: %v", driver, err)
	}
	return s
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
