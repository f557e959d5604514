package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SetCounter overwrites a counter value.
func (t *sqlTx) SetCounter(ctx context.Context, key string, value int64) error {
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(qSetCounter), value, key)
	if err != nil {
		return fmt.Errorf("write counter %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("counter %q: %w", key, ErrCounterMissing)
	}
	return nil
}

// InsertBalance adds a balance row. Duplicate (workspace, name) pairs are
// accepted; the schema carries no uniqueness constraint.
func (t *sqlTx) InsertBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.rebind(qInsertBalance), int64(ws), name, money); err != nil {
		return fmt.Errorf("insert balance %q: %w", name, err)
	}
	return nil
}

// SetBalance writes money without looking at the current value.
func (t *sqlTx) SetBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(qSetBalance), money, name, int64(ws))
	if err != nil {
		return fmt.Errorf("write balance %q: %w", name, err)
	}
	return requireRows(res, name, ws)
}

// AddToBalance lets the engine compute money + delta.
func (t *sqlTx) AddToBalance(ctx context.Context, ws WorkspaceID, name string, delta decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, t.dialect.rebind(qAddBalance), delta, name, int64(ws))
	if err != nil {
		return fmt.Errorf("adjust balance %q: %w", name, err)
	}
	return requireRows(res, name, ws)
}

// Commit commits and releases the connection back to the pool.
func (t *sqlTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	err := t.tx.Commit()
	if cerr := t.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op once the transaction has
// ended, so it is safe to defer.
func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		err = nil
	}
	if cerr := t.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func requireRows(res sql.Result, name string, ws WorkspaceID) error {
	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows; treat as success.
		return nil
	}
	if n == 0 {
		return fmt.Errorf("balance %q in workspace %d: %w", name, ws, ErrBalanceNotFound)
	}
	return nil
}
