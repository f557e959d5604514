package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
	"github.com/roach88/txiso/internal/testutil"
)

func amt(s string) Amount {
	return NewAmount(decimal.RequireFromString(s))
}

func bal(name, money string) store.Balance {
	return store.Balance{Name: name, Money: decimal.RequireFromString(money)}
}

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func summaryOf(observed ...[]store.Balance) experiment.TrialSummary {
	sum := experiment.TrialSummary{Trials: len(observed), DistinctWorkspaces: true}
	expected := []store.Balance{bal("Alice", "1300"), bal("Bob", "0")}
	for i, o := range observed {
		obs := experiment.Observation{
			Workspace: store.WorkspaceID(i + 1),
			Expected:  expected,
			Observed:  o,
			Verdict:   experiment.Verify(expected, o),
		}
		if obs.Anomalous() {
			sum.Anomalies++
		}
		sum.Observations = append(sum.Observations, obs)
	}
	sum.AnomalyRate = float64(sum.Anomalies) / float64(sum.Trials)
	return sum
}

func TestAssertFinalBalances(t *testing.T) {
	sum := summaryOf(
		[]store.Balance{bal("Alice", "1300"), bal("Bob", "0")},
		[]store.Balance{bal("Alice", "1300.00"), bal("Bob", "0")},
	)

	err := assertFinalBalances(sum, Assertion{Expect: map[string]Amount{"Alice": amt("1300")}}, nil)
	assert.NoError(t, err)

	err = assertFinalBalances(sum, Assertion{Expect: map[string]Amount{"Bob": amt("5")}}, nil)
	require.Error(t, err)
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, AssertFinalBalances, ae.Type)
	assert.Equal(t, 1, ae.Trial)
	assert.Equal(t, "Bob=5", ae.Expected)
	assert.Equal(t, "Bob=0", ae.Actual)

	err = assertFinalBalances(sum, Assertion{Expect: map[string]Amount{"Carol": amt("1")}}, nil)
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "no balance named Carol", ae.Actual)
}

func TestAssertFinalBalances_SecondTrialFails(t *testing.T) {
	sum := summaryOf(
		[]store.Balance{bal("Alice", "1300"), bal("Bob", "0")},
		[]store.Balance{bal("Alice", "1010"), bal("Bob", "0")},
	)
	err := assertFinalBalances(sum, Assertion{Expect: map[string]Amount{"Alice": amt("1300")}}, nil)
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 2, ae.Trial)
	assert.Contains(t, ae.Error(), "Assertion failed: final_balances (trial 2)")
	assert.Contains(t, ae.Error(), "Actual: Alice=1010")
}

func TestAssertFinalBalances_RereadsStore(t *testing.T) {
	ctx := context.Background()
	s := testutil.MemoryStore(t)
	ws, err := experiment.AllocateWorkspace(ctx, s)
	require.NoError(t, err)
	require.NoError(t, experiment.SeedBalances(ctx, s, ws, []experiment.Entry{{Name: "Alice", Money: decimal.NewFromInt(7)}}))

	// The observation claims 1300; the store holds 7.
	sum := summaryOf([]store.Balance{bal("Alice", "1300")})
	sum.Observations[0].Workspace = ws

	err = assertFinalBalances(sum, Assertion{Expect: map[string]Amount{"Alice": amt("7")}}, &AssertionContext{Store: s, Ctx: ctx})
	assert.NoError(t, err)
}

func TestAssertMatchesSerial(t *testing.T) {
	clean := summaryOf([]store.Balance{bal("Alice", "1300"), bal("Bob", "0")})
	dirty := summaryOf(
		[]store.Balance{bal("Alice", "1300"), bal("Bob", "0")},
		[]store.Balance{bal("Alice", "1010"), bal("Bob", "0")},
	)

	assert.NoError(t, assertMatchesSerial(clean, Assertion{Value: boolPtr(true)}))
	assert.Error(t, assertMatchesSerial(clean, Assertion{Value: boolPtr(false)}))
	assert.NoError(t, assertMatchesSerial(dirty, Assertion{Value: boolPtr(false)}))

	err := assertMatchesSerial(dirty, Assertion{Value: boolPtr(true)})
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 2, ae.Trial)
	assert.Equal(t, `Alice expected "1300" observed "1010"`, ae.Actual)
}

func TestAssertBounds(t *testing.T) {
	assert.NoError(t, assertBounds(AssertLostUpdates, 0, Assertion{Max: floatPtr(0)}))
	assert.NoError(t, assertBounds(AssertAnomalyRate, 0.5, Assertion{Min: floatPtr(0.1), Max: floatPtr(1)}))

	err := assertBounds(AssertLostUpdates, 29, Assertion{Max: floatPtr(0)})
	var ae *AssertionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "<= 0", ae.Expected)
	assert.Equal(t, "29", ae.Actual)

	err = assertBounds(AssertAnomalyRate, 0, Assertion{Min: floatPtr(0.25)})
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, ">= 0.25", ae.Expected)
}

func TestEvaluateAssertions(t *testing.T) {
	sum := summaryOf([]store.Balance{bal("Alice", "1010"), bal("Bob", "0")})
	sum.MaxLostUpdates = 29

	msgs := EvaluateAssertions(sum, []Assertion{
		{Type: AssertFinalBalances, Expect: map[string]Amount{"Bob": amt("0")}},
		{Type: AssertMatchesSerial, Value: boolPtr(true)},
		{Type: AssertLostUpdates, Max: floatPtr(29)},
		{Type: AssertAnomalyRate, Max: floatPtr(0.5)},
		{Type: AssertDistinctWorkspaces, Value: boolPtr(true)},
		{Type: AssertDistinctWorkspaces},
		{Type: "trace_order"},
	}, nil)

	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0], "matches_serial")
	assert.Contains(t, msgs[1], "anomaly_rate")
	assert.Contains(t, msgs[2], "distinct_workspaces requires value")
	assert.Contains(t, msgs[3], `unknown assertion type "trace_order"`)
}
