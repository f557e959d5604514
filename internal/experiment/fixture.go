package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/txiso/internal/store"
)

// Entry is one named balance to seed.
type Entry struct {
	Name  string          `json:"name" yaml:"name"`
	Money decimal.Decimal `json:"money" yaml:"money"`
}

// NormalizeName returns the NFC form of an account name. Composed and
// decomposed spellings of the same name address the same row.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// ParseEntry parses "name=amount".
func ParseEntry(s string) (Entry, error) {
	name, amount, ok := strings.Cut(s, "=")
	if !ok {
		return Entry{}, fmt.Errorf("entry %q: want name=amount", s)
	}
	money, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q: %w", s, err)
	}
	return Entry{Name: strings.TrimSpace(name), Money: money}, nil
}

// SeedBalances inserts one balance row per entry into ws, all inside a single
// transaction. Either every row is created or none is.
//
// Entries are inserted in order. Duplicate names are not rejected; the
// schema allows them.
func SeedBalances(ctx context.Context, s store.Store, ws store.WorkspaceID, entries []Entry) error {
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return newError(CodeStore, "seed", fmt.Errorf("entry %d: %w", i, errEmptyName))
		}
	}

	tx, err := s.Begin(ctx, nil)
	if err != nil {
		return newError(CodeStore, "seed", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := tx.InsertBalance(ctx, ws, NormalizeName(e.Name), e.Money); err != nil {
			return newError(CodeStore, "seed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return newError(CodeStore, "seed", err)
	}
	return nil
}

var errEmptyName = errors.New("account name is empty")
