package experiment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/txiso/internal/store"
)

// Step is one in-engine adjustment: money = money + Delta.
type Step struct {
	Account string          `json:"account" yaml:"account"`
	Delta   decimal.Decimal `json:"delta" yaml:"delta"`
}

// ParseStep parses "name=delta", e.g. "Alice=-10".
func ParseStep(s string) (Step, error) {
	e, err := ParseEntry(s)
	if err != nil {
		return Step{}, err
	}
	return Step{Account: e.Name, Delta: e.Money}, nil
}

// Transfer applies steps in order inside one READ COMMITTED transaction.
// With no concurrency this is the sequential baseline: final = initial + sum
// of deltas per account.
func Transfer(ctx context.Context, s store.Store, ws store.WorkspaceID, steps []Step) error {
	for i, st := range steps {
		if strings.TrimSpace(st.Account) == "" {
			return newError(CodeStore, "transfer", fmt.Errorf("step %d: %w", i, errEmptyName))
		}
	}

	tx, err := s.Begin(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return newError(CodeStore, "transfer", err)
	}
	defer tx.Rollback()

	for _, st := range steps {
		if err := tx.AddToBalance(ctx, ws, NormalizeName(st.Account), st.Delta); err != nil {
			return newError(CodeStore, "transfer", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newError(CodeStore, "transfer", err)
	}
	return nil
}
