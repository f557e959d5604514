package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers driver "pgx"
	_ "github.com/lib/pq"              // registers driver "postgres"
	_ "github.com/mattn/go-sqlite3"    // registers driver "sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// SQLStore drives a relational engine through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ Store = (*SQLStore)(nil)

// Options tunes the connection pool.
type Options struct {
	// MaxOpenConns caps the pool. Zero means unlimited. A cap below the
	// experiment's concurrency serialises units on connection acquisition
	// and hides the anomaly.
	MaxOpenConns int
}

// Open connects to the engine behind driver/dsn and verifies the connection.
// It does not touch the schema; see Migrate.
func Open(ctx context.Context, driver, dsn string, opts Options) (*SQLStore, error) {
	if driver == "sqlite" {
		driver = DriverSQLite
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("open %s: dsn is required", driver)
	}
	if d.name == sqliteDialect.name {
		dsn = sqliteDSN(dsn)
	}

	openMu.Lock()
	db, err := sqlOpen(driver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

// Close closes the pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying pool for direct queries in tests and tooling.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect name ("postgres" or "sqlite").
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Begin takes a dedicated connection from the pool and starts a transaction
// on it.
func (s *SQLStore) Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(ctx, s.dialect.txOptions(opts))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{conn: conn, tx: tx, dialect: s.dialect}, nil
}

// Migrate applies schema.sql statement by statement. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// splitStatements breaks a script into statements on ";" line endings and
// drops comment-only fragments.
func splitStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			stmts = append(stmts, stmt)
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// OverrideSQLOpen swaps the sql.Open function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
