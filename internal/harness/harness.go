package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
	"github.com/roach88/txiso/internal/testutil"
)

// Harness runs scenarios with a deterministic step clock and run ids.
type Harness struct {
	clock  *testutil.StepClock
	runIDs *testutil.FixedRunIDGenerator
	logger *slog.Logger
}

// Run executes a scenario against a fresh in-memory store and returns the
// result. opts are passed through to RunOn.
//
// Execution flow:
// 1. Create and migrate a fresh memory store
// 2. Convert the scenario into an experiment plan
// 3. Execute the plan once per trial, each in a new workspace
// 4. Build the trace and evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...experiment.Option) (*Result, error) {
	st := store.NewMemoryStore()
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return RunOn(ctx, st, scenario, opts...)
}

// RunOn executes a scenario against an already migrated store. opts are
// applied after the harness defaults, so callers can attach a logger or a
// metrics recorder.
func RunOn(ctx context.Context, st store.Store, scenario *Scenario, opts ...experiment.Option) (*Result, error) {
	plan, err := scenario.Plan()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", scenario.Name, err)
	}

	h := &Harness{
		clock:  testutil.NewStepClock(),
		runIDs: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: testutil.DiscardLogger(),
	}

	all := append([]experiment.Option{
		experiment.WithLogger(h.logger),
		experiment.WithIDGenerator(h.runIDs),
	}, opts...)
	exp := experiment.New(st, all...)

	sum, err := exp.Trials(ctx, plan, scenario.TrialCount())
	if err != nil {
		return nil, fmt.Errorf("failed to execute scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Summary = sum
	for i, obs := range sum.Observations {
		h.trace(result, i+1, plan, obs)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(sum, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// trace records the steps of one trial. Details carry only values that
// are identical on every run: no workspace ids and no observed amounts.
func (h *Harness) trace(r *Result, trial int, plan experiment.Plan, obs experiment.Observation) {
	r.AddTrace(h.clock.Next(), trial, StepAllocate, "workspace allocated")
	r.AddTrace(h.clock.Next(), trial, StepSeed, fmt.Sprintf("%d balances", len(plan.Seed)))

	switch obs.Mode {
	case experiment.ModeTransfer:
		r.AddTrace(h.clock.Next(), trial, StepTransfer, fmt.Sprintf("%d steps in one transaction", len(plan.Transfer)))
	default:
		think := "none"
		if plan.ThinkTime > 0 {
			think = plan.ThinkTime.String()
		}
		r.AddTrace(h.clock.Next(), trial, StepRun, fmt.Sprintf(
			"%d units account=%s delta=%s lock=%s isolation=%s think_time=%s",
			plan.Concurrency, plan.Account, plan.Delta, plan.Lock,
			store.IsolationName(plan.Isolation), think))
	}

	r.AddTrace(h.clock.Next(), trial, StepRead, fmt.Sprintf("%d balances", len(obs.Observed)))
	r.AddTrace(h.clock.Next(), trial, StepVerify, "compared with serial result")
}
