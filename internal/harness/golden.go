package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/txiso/internal/experiment"
)

// ReportSnapshot is the deterministic part of a scenario result.
//
// Workspace ids and observed amounts of unprotected runs depend on
// scheduling, so they are left out; assertions cover them instead.
type ReportSnapshot struct {
	ScenarioName string          `json:"scenario_name"`
	RunID        string          `json:"run_id"`
	Mode         experiment.Mode `json:"mode"`
	Trials       int             `json:"trials"`
	Expected     []string        `json:"expected"`
	Trace        []TraceEvent    `json:"trace"`
	Pass         bool            `json:"pass"`
	Errors       []string        `json:"errors,omitempty"`
}

// NewReportSnapshot builds the snapshot of result for scenario.
func NewReportSnapshot(scenario *Scenario, result *Result) (ReportSnapshot, error) {
	plan, err := scenario.Plan()
	if err != nil {
		return ReportSnapshot{}, err
	}
	runID := scenario.RunID
	if runID == "" {
		runID = "test-run-default"
	}

	expected := plan.Expected()
	snap := ReportSnapshot{
		ScenarioName: scenario.Name,
		RunID:        runID,
		Mode:         plan.Mode(),
		Trials:       result.Summary.Trials,
		Expected:     make([]string, 0, len(expected)),
		Trace:        result.Trace,
		Pass:         result.Pass,
		Errors:       result.Errors,
	}
	for _, b := range expected {
		snap.Expected = append(snap.Expected, b.String())
	}
	return snap, nil
}

// Marshal renders the snapshot as indented JSON.
func (s ReportSnapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RunWithGolden executes a scenario and compares the report against a golden
// file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the report doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snap, err := NewReportSnapshot(scenario, result)
	if err != nil {
		return err
	}
	report, err := snap.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, report)
	return nil
}
