package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Driver names accepted by Open.
const (
	DriverPgx     = "pgx"
	DriverPQ      = "postgres"
	DriverSQLite  = "sqlite3"
	DriverMemory  = "memory"
	DefaultDriver = DriverPgx
)

// Statements are written with ? placeholders and rebound per dialect.
const (
	qCounter       = `SELECT value FROM key_int_value WHERE "key" = ?`
	qTouchCounter  = `UPDATE key_int_value SET value = value WHERE "key" = ?`
	qSetCounter    = `UPDATE key_int_value SET value = ? WHERE "key" = ?`
	qInsertBalance = `INSERT INTO balance (workspace_id, name, money) VALUES (?, ?, ?)`
	qBalance       = `SELECT money FROM balance WHERE name = ? AND workspace_id = ?`
	qTouchBalance  = `UPDATE balance SET money = money WHERE name = ? AND workspace_id = ?`
	qSetBalance    = `UPDATE balance SET money = ? WHERE name = ? AND workspace_id = ?`
	qAddBalance    = `UPDATE balance SET money = money + ? WHERE name = ? AND workspace_id = ?`
	qBalances      = `SELECT name, money FROM balance WHERE workspace_id = ? ORDER BY name`
)

// dialect captures the differences between the SQL engines we drive.
type dialect struct {
	name string

	// dollarParams rebinds ? to $1..$n.
	dollarParams bool

	// forUpdate is true when the engine supports SELECT ... FOR UPDATE.
	// Without it a locked read is emulated by a no-op UPDATE issued first,
	// which takes the engine's write lock before the SELECT runs.
	forUpdate bool

	// isolation reports whether BeginTx accepts explicit isolation levels.
	isolation bool
}

var (
	postgresDialect = dialect{name: "postgres", dollarParams: true, forUpdate: true, isolation: true}
	sqliteDialect   = dialect{name: "sqlite"}
)

// dialectFor resolves a database/sql driver name to its dialect.
func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverPgx, DriverPQ:
		return postgresDialect, nil
	case DriverSQLite:
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported driver %q (want %s|%s|%s|%s)",
			driver, DriverPgx, DriverPQ, DriverSQLite, DriverMemory)
	}
}

// rebind converts ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.dollarParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockedSelect appends FOR UPDATE when the dialect supports it.
func (d dialect) lockedSelect(query string, lock LockMode) string {
	if lock == LockForUpdate && d.forUpdate {
		query += " FOR UPDATE"
	}
	return d.rebind(query)
}

// needsTouch reports whether a locked read must be preceded by a no-op write.
func (d dialect) needsTouch(lock LockMode) bool {
	return lock == LockForUpdate && !d.forUpdate
}

// txOptions drops isolation levels the engine cannot honour. SQLite
// transactions are always serializable.
func (d dialect) txOptions(opts *sql.TxOptions) *sql.TxOptions {
	if opts == nil || d.isolation {
		return opts
	}
	return &sql.TxOptions{ReadOnly: opts.ReadOnly}
}

// sqliteDSN adds the connection parameters every pooled connection needs.
// busy_timeout is per connection, so it has to travel in the DSN rather than
// be applied once with PRAGMA.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") || strings.Contains(dsn, "_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
}
