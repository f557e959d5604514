package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// sqlTx is a transaction pinned to its own *sql.Conn.
type sqlTx struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect dialect
	done    bool
}

// Balances returns every balance in the workspace ordered by name.
// It runs outside any explicit transaction.
//
// Returns an empty slice (not nil) if the workspace holds no rows.
func (s *SQLStore) Balances(ctx context.Context, ws WorkspaceID) ([]Balance, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(qBalances), int64(ws))
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	balances := []Balance{}
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Name, &b.Money); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return balances, nil
}

// Counter reads a key_int_value row, optionally under an exclusive lock.
func (t *sqlTx) Counter(ctx context.Context, key string, lock LockMode) (int64, error) {
	if t.dialect.needsTouch(lock) {
		res, err := t.tx.ExecContext(ctx, t.dialect.rebind(qTouchCounter), key)
		if err != nil {
			return 0, fmt.Errorf("lock counter %q: %w", key, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return 0, fmt.Errorf("counter %q: %w", key, ErrCounterMissing)
		}
	}

	var value int64
	err := t.tx.QueryRowContext(ctx, t.dialect.lockedSelect(qCounter, lock), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("counter %q: %w", key, ErrCounterMissing)
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %q: %w", key, err)
	}
	return value, nil
}

// Balance reads one account's money. When several rows share the name the
// first returned by the engine wins.
func (t *sqlTx) Balance(ctx context.Context, ws WorkspaceID, name string, lock LockMode) (decimal.Decimal, error) {
	if t.dialect.needsTouch(lock) {
		if _, err := t.tx.ExecContext(ctx, t.dialect.rebind(qTouchBalance), name, int64(ws)); err != nil {
			return decimal.Zero, fmt.Errorf("lock balance %q: %w", name, err)
		}
	}

	var money decimal.Decimal
	err := t.tx.QueryRowContext(ctx, t.dialect.lockedSelect(qBalance, lock), name, int64(ws)).Scan(&money)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("balance %q in workspace %d: %w", name, ws, ErrBalanceNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance %q: %w", name, err)
	}
	return money, nil
}
