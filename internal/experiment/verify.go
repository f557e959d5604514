package experiment

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/txiso/internal/store"
)

// ReadBalances reads every balance in ws with a plain read outside any
// explicit transaction. Callers must treat the result as a set; it happens
// to be ordered by name.
func ReadBalances(ctx context.Context, s store.Store, ws store.WorkspaceID) ([]store.Balance, error) {
	balances, err := s.Balances(ctx, ws)
	if err != nil {
		return nil, newError(CodeStore, "read balances", err)
	}
	return balances, nil
}

// Mismatch is one account whose expected and observed amounts differ.
// An empty side means no row with that name exists there.
type Mismatch struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// Verdict is the outcome of comparing expected and observed balances.
type Verdict struct {
	Match      bool       `json:"match"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Verify compares expected and observed as multisets of (name, money).
// Order is irrelevant and amounts compare numerically, so 1000 equals
// 1000.00.
func Verify(expected, observed []store.Balance) Verdict {
	exp := groupByName(expected)
	obs := groupByName(observed)

	names := make([]string, 0, len(exp)+len(obs))
	for name := range exp {
		names = append(names, name)
	}
	for name := range obs {
		if _, ok := exp[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	v := Verdict{Match: true}
	for _, name := range names {
		e, o := exp[name], obs[name]
		if slices.Equal(e, o) {
			continue
		}
		v.Match = false
		v.Mismatches = append(v.Mismatches, Mismatch{
			Name:     name,
			Expected: strings.Join(e, ","),
			Observed: strings.Join(o, ","),
		})
	}
	return v
}

// groupByName maps each normalized name to its sorted canonical amounts.
func groupByName(balances []store.Balance) map[string][]string {
	out := make(map[string][]string, len(balances))
	for _, b := range balances {
		name := NormalizeName(b.Name)
		out[name] = append(out[name], b.Money.String())
	}
	for _, amounts := range out {
		slices.Sort(amounts)
	}
	return out
}

// ExpectedSerial returns the balances seed would hold after n increments of
// delta to account were applied one after another.
func ExpectedSerial(seed []Entry, account string, n int, delta decimal.Decimal) []store.Balance {
	total := delta.Mul(decimal.NewFromInt(int64(n)))
	return applySteps(seed, []Step{{Account: account, Delta: total}})
}

// ExpectedAfterSteps returns the balances seed would hold after steps.
func ExpectedAfterSteps(seed []Entry, steps []Step) []store.Balance {
	return applySteps(seed, steps)
}

// applySteps adds each step's delta to every seed row with that name, the
// same rows an UPDATE ... WHERE name = ? would touch.
func applySteps(seed []Entry, steps []Step) []store.Balance {
	out := make([]store.Balance, len(seed))
	for i, e := range seed {
		out[i] = store.Balance{Name: NormalizeName(e.Name), Money: e.Money}
	}
	for _, st := range steps {
		name := NormalizeName(st.Account)
		for i := range out {
			if out[i].Name == name {
				out[i].Money = out[i].Money.Add(st.Delta)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b store.Balance) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// LostUpdates returns how many increments of delta to account are missing
// from observed relative to expected. It is zero when delta is zero or the
// account is absent from either side.
func LostUpdates(expected, observed []store.Balance, account string, delta decimal.Decimal) int64 {
	if delta.IsZero() {
		return 0
	}
	name := NormalizeName(account)
	exp, ok := find(expected, name)
	if !ok {
		return 0
	}
	obs, ok := find(observed, name)
	if !ok {
		return 0
	}
	return exp.Sub(obs).Div(delta).IntPart()
}

func find(balances []store.Balance, name string) (decimal.Decimal, bool) {
	for _, b := range balances {
		if NormalizeName(b.Name) == name {
			return b.Money, true
		}
	}
	return decimal.Zero, false
}
