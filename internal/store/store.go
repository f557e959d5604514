package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NextWorkspaceKey is the key_int_value row holding the next free workspace id.
const NextWorkspaceKey = "next_workspace_id"

var (
	// ErrCounterMissing is returned when a counter row does not exist.
	ErrCounterMissing = errors.New("counter row not found")

	// ErrBalanceNotFound is returned when no balance row matches a read.
	ErrBalanceNotFound = errors.New("balance row not found")
)

// WorkspaceID scopes a set of balance rows to one test execution.
type WorkspaceID int64

// Balance is one named account's amount within a workspace.
type Balance struct {
	Name  string          `json:"name"`
	Money decimal.Decimal `json:"money"`
}

// String renders the balance as name=money.
func (b Balance) String() string {
	return b.Name + "=" + b.Money.String()
}

// LockMode selects how a transaction reads a row it intends to write.
type LockMode int

const (
	// LockNone reads under the transaction's isolation level only.
	LockNone LockMode = iota
	// LockForUpdate takes an exclusive row lock held until commit or rollback.
	LockForUpdate
)

// String returns the canonical lock mode name used in flags and scenarios.
func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockForUpdate:
		return "for_update"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// ParseLockMode parses "none" or "for_update". The empty string is LockNone.
func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LockNone, nil
	case "for_update", "for-update", "forupdate":
		return LockForUpdate, nil
	default:
		return LockNone, fmt.Errorf("unknown lock mode %q (want none|for_update)", s)
	}
}

// ParseIsolation maps a scenario/flag isolation name onto sql.IsolationLevel.
// The empty string is READ COMMITTED; the engine's own default is never used.
func ParseIsolation(s string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "read_committed", "read-committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable-read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelReadCommitted, fmt.Errorf("unknown isolation level %q (want read_committed|repeatable_read|serializable)", s)
	}
}

// Store opens transactions against the engine under test.
type Store interface {
	// Begin opens an independent connection and starts a transaction on it.
	// The connection is released when the transaction commits or rolls back.
	Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error)

	// Balances performs a plain read of every balance in the workspace,
	// outside any explicit transaction. Results are ordered by name.
	Balances(ctx context.Context, ws WorkspaceID) ([]Balance, error)

	// Migrate creates the schema if missing and seeds next_workspace_id with 1
	// when the row is absent. It is idempotent.
	Migrate(ctx context.Context) error

	// Close releases the engine.
	Close() error
}

// Tx is one transaction on a dedicated connection.
type Tx interface {
	// Counter reads a counter value. ErrCounterMissing if the row is absent.
	Counter(ctx context.Context, key string, lock LockMode) (int64, error)

	// SetCounter overwrites a counter value.
	SetCounter(ctx context.Context, key string, value int64) error

	// InsertBalance adds one balance row.
	InsertBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error

	// Balance reads the amount of one account. ErrBalanceNotFound if absent.
	Balance(ctx context.Context, ws WorkspaceID, name string, lock LockMode) (decimal.Decimal, error)

	// SetBalance writes money unconditionally (no compare-and-swap).
	SetBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error

	// AddToBalance applies money = money + delta inside the engine.
	AddToBalance(ctx context.Context, ws WorkspaceID, name string, delta decimal.Decimal) error

	Commit() error
	Rollback() error
}

// IsolationName is the inverse of ParseIsolation.
func IsolationName(l sql.IsolationLevel) string {
	switch l {
	case sql.LevelDefault, sql.LevelReadCommitted:
		return "read_committed"
	case sql.LevelRepeatableRead:
		return "repeatable_read"
	case sql.LevelSerializable:
		return "serializable"
	default:
		return l.String()
	}
}
