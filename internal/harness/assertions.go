package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Trial    int    // 1-based trial that failed, 0 when the summary failed
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Trial > 0 {
		fmt.Fprintf(&buf, " (trial %d)", e.Trial)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext lets final_balances re-read each trial's workspace from
// the store instead of trusting the observation.
type AssertionContext struct {
	Store store.Store
	Ctx   context.Context
}

// assertFinalBalances checks that every listed account holds its expected
// amount on every trial. Unlisted accounts are ignored.
func assertFinalBalances(sum experiment.TrialSummary, assertion Assertion, actx *AssertionContext) error {
	names := make([]string, 0, len(assertion.Expect))
	for name := range assertion.Expect {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, obs := range sum.Observations {
		balances := obs.Observed
		if actx != nil && actx.Store != nil {
			reread, err := experiment.ReadBalances(actx.Ctx, actx.Store, obs.Workspace)
			if err != nil {
				return fmt.Errorf("final_balances: trial %d: %w", i+1, err)
			}
			balances = reread
		}

		for _, name := range names {
			want := assertion.Expect[name].Decimal
			got, ok := findBalance(balances, name)
			if !ok {
				return &AssertionError{
					Type:     AssertFinalBalances,
					Trial:    i + 1,
					Expected: fmt.Sprintf("%s=%s", name, want),
					Actual:   fmt.Sprintf("no balance named %s", name),
				}
			}
			if !got.Money.Equal(want) {
				return &AssertionError{
					Type:     AssertFinalBalances,
					Trial:    i + 1,
					Expected: fmt.Sprintf("%s=%s", name, want),
					Actual:   got.String(),
				}
			}
		}
	}
	return nil
}

// findBalance returns the single balance with name. Seeds with duplicate
// names cannot be asserted by name.
func findBalance(balances []store.Balance, name string) (store.Balance, bool) {
	name = experiment.NormalizeName(name)
	var found store.Balance
	n := 0
	for _, b := range balances {
		if b.Name == name {
			found = b
			n++
		}
	}
	return found, n == 1
}

// assertMatchesSerial checks whether every trial matched (or, with
// value false, at least one trial diverged from) the serial result.
func assertMatchesSerial(sum experiment.TrialSummary, assertion Assertion) error {
	want := *assertion.Value
	if want {
		for i, obs := range sum.Observations {
			if obs.Anomalous() {
				return &AssertionError{
					Type:     AssertMatchesSerial,
					Trial:    i + 1,
					Expected: "observed balances equal the serial result",
					Actual:   describeMismatches(obs.Verdict.Mismatches),
				}
			}
		}
		return nil
	}

	if sum.Anomalies == 0 {
		return &AssertionError{
			Type:     AssertMatchesSerial,
			Expected: "at least one trial diverging from the serial result",
			Actual:   fmt.Sprintf("all %d trials matched", sum.Trials),
		}
	}
	return nil
}

func describeMismatches(ms []experiment.Mismatch) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, fmt.Sprintf("%s expected %q observed %q", m.Name, m.Expected, m.Observed))
	}
	return strings.Join(parts, "; ")
}

// assertBounds checks min <= value <= max with either side optional.
func assertBounds(kind string, value float64, assertion Assertion) error {
	if assertion.Min != nil && value < *assertion.Min {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf(">= %s", formatFloat(*assertion.Min)),
			Actual:   formatFloat(value),
		}
	}
	if assertion.Max != nil && value > *assertion.Max {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("<= %s", formatFloat(*assertion.Max)),
			Actual:   formatFloat(value),
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// assertDistinctWorkspaces checks whether every trial ran in its own
// workspace.
func assertDistinctWorkspaces(sum experiment.TrialSummary, assertion Assertion) error {
	if sum.DistinctWorkspaces != *assertion.Value {
		return &AssertionError{
			Type:     AssertDistinctWorkspaces,
			Expected: fmt.Sprintf("distinct workspaces = %t", *assertion.Value),
			Actual:   fmt.Sprintf("distinct workspaces = %t", sum.DistinctWorkspaces),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the trial summary.
// Returns a slice of error messages for failed assertions.
// actx may be nil, in which case final_balances uses the observed balances.
func EvaluateAssertions(sum experiment.TrialSummary, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalBalances:
			err = assertFinalBalances(sum, assertion, actx)
		case AssertMatchesSerial:
			if assertion.Value == nil {
				err = fmt.Errorf("assertion[%d]: matches_serial requires value", i)
			} else {
				err = assertMatchesSerial(sum, assertion)
			}
		case AssertLostUpdates:
			err = assertBounds(AssertLostUpdates, float64(sum.MaxLostUpdates), assertion)
		case AssertAnomalyRate:
			err = assertBounds(AssertAnomalyRate, sum.AnomalyRate, assertion)
		case AssertDistinctWorkspaces:
			if assertion.Value == nil {
				err = fmt.Errorf("assertion[%d]: distinct_workspaces requires value", i)
			} else {
				err = assertDistinctWorkspaces(sum, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
