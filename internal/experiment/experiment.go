package experiment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/txiso/internal/store"
)

// Mode names how a plan mutates the ledger.
type Mode string

const (
	// ModeConcurrent runs N concurrent read-modify-write units.
	ModeConcurrent Mode = "concurrent"

	// ModeTransfer runs the plan's steps in a single transaction.
	ModeTransfer Mode = "transfer"
)

// Plan is one complete experiment: what to seed and how to mutate it.
type Plan struct {
	// Seed is inserted into the fresh workspace before the run.
	Seed []Entry

	// Account, Concurrency, Delta, Lock, Isolation and ThinkTime configure
	// the runner. See Increments.
	Account     string
	Concurrency int
	Delta       decimal.Decimal
	Lock        store.LockMode
	Isolation   sql.IsolationLevel
	ThinkTime   time.Duration

	// Transfer, when non-empty, replaces the concurrent run with one
	// sequential transaction applying these steps.
	Transfer []Step
}

// Mode reports which mutation the plan performs.
func (p Plan) Mode() Mode {
	if len(p.Transfer) > 0 {
		return ModeTransfer
	}
	return ModeConcurrent
}

func (p Plan) increments() Increments {
	return Increments{
		Account:     p.Account,
		Concurrency: p.Concurrency,
		Delta:       p.Delta,
		Lock:        p.Lock,
		Isolation:   p.Isolation,
		ThinkTime:   p.ThinkTime,
	}
}

// Expected returns the balances a serial execution of p would leave.
func (p Plan) Expected() []store.Balance {
	if p.Mode() == ModeTransfer {
		return ExpectedAfterSteps(p.Seed, p.Transfer)
	}
	return ExpectedSerial(p.Seed, p.Account, p.Concurrency, p.Delta)
}

// Observation is the result of executing one plan in one workspace.
type Observation struct {
	RunID       string            `json:"run_id"`
	Workspace   store.WorkspaceID `json:"workspace"`
	Mode        Mode              `json:"mode"`
	Expected    []store.Balance   `json:"expected"`
	Observed    []store.Balance   `json:"observed"`
	Verdict     Verdict           `json:"verdict"`
	LostUpdates int64             `json:"lost_updates"`
	Stats       RunStats          `json:"stats"`
}

// Anomalous reports whether the observed state diverged from the serial one.
func (o Observation) Anomalous() bool {
	return !o.Verdict.Match
}

// Experiment chains Allocator, Fixture, Runner and Verifier.
type Experiment struct {
	store    store.Store
	runner   *Runner
	logger   *slog.Logger
	recorder Recorder
	ids      IDGenerator
}

// New creates an experiment over s.
func New(s store.Store, opts ...Option) *Experiment {
	cfg := newSettings(opts)
	return &Experiment{
		store:    s,
		runner:   NewRunner(s, opts...),
		logger:   cfg.logger,
		recorder: cfg.recorder,
		ids:      cfg.ids,
	}
}

// Execute allocates a workspace, seeds it, runs the plan, reads the final
// balances and compares them against the serial expectation.
//
// A mismatch is not an error; it is reported in the Observation. Errors are
// returned for setup and store failures and for failed units, in which case
// the Observation carries whatever was collected before the failure.
func (e *Experiment) Execute(ctx context.Context, plan Plan) (Observation, error) {
	obs := Observation{
		RunID:    e.ids.Generate(),
		Mode:     plan.Mode(),
		Expected: plan.Expected(),
	}

	ws, err := AllocateWorkspace(ctx, e.store)
	if err != nil {
		return obs, err
	}
	e.recorder.WorkspaceAllocated()
	obs.Workspace = ws

	if err := SeedBalances(ctx, e.store, ws, plan.Seed); err != nil {
		return obs, err
	}

	switch obs.Mode {
	case ModeTransfer:
		if err := Transfer(ctx, e.store, ws, plan.Transfer); err != nil {
			return obs, err
		}
	default:
		stats, err := e.runner.RunConcurrentIncrements(ctx, ws, plan.increments())
		obs.Stats = stats
		if err != nil {
			return obs, err
		}
	}

	observed, err := ReadBalances(ctx, e.store, ws)
	if err != nil {
		return obs, err
	}
	obs.Observed = observed
	obs.Verdict = Verify(obs.Expected, observed)
	if obs.Mode == ModeConcurrent {
		obs.LostUpdates = LostUpdates(obs.Expected, observed, plan.Account, plan.Delta)
		e.recorder.TrialObserved(plan.Lock, obs.LostUpdates)
	}

	e.logger.Info("experiment observed",
		"run_id", obs.RunID,
		"workspace", int64(ws),
		"mode", string(obs.Mode),
		"match", obs.Verdict.Match,
		"lost_updates", obs.LostUpdates,
	)
	return obs, nil
}

// TrialSummary aggregates repeated executions of one plan.
type TrialSummary struct {
	Trials       int           `json:"trials"`
	Observations []Observation `json:"observations"`

	// Anomalies counts observations that did not match the serial result.
	Anomalies   int     `json:"anomalies"`
	AnomalyRate float64 `json:"anomaly_rate"`

	// MaxLostUpdates is the largest LostUpdates across observations.
	MaxLostUpdates int64 `json:"max_lost_updates"`

	// DistinctWorkspaces is true when no two trials shared a workspace.
	DistinctWorkspaces bool `json:"distinct_workspaces"`
}

// Trials executes plan k times, each in a fresh workspace, and summarizes.
// The lost-update anomaly is racy, so it is judged by rate over trials.
// The first failing trial stops the loop; the summary covers the trials
// that completed.
func (e *Experiment) Trials(ctx context.Context, plan Plan, k int) (TrialSummary, error) {
	if k < 1 {
		return TrialSummary{}, fmt.Errorf("trials must be at least 1, got %d", k)
	}

	var sum TrialSummary
	seen := make(map[store.WorkspaceID]struct{}, k)
	sum.DistinctWorkspaces = true
	for i := 0; i < k; i++ {
		obs, err := e.Execute(ctx, plan)
		if err != nil {
			summarize(&sum)
			return sum, fmt.Errorf("trial %d: %w", i+1, err)
		}
		if _, dup := seen[obs.Workspace]; dup {
			sum.DistinctWorkspaces = false
		}
		seen[obs.Workspace] = struct{}{}
		sum.Observations = append(sum.Observations, obs)
	}
	summarize(&sum)
	return sum, nil
}

func summarize(sum *TrialSummary) {
	sum.Trials = len(sum.Observations)
	sum.Anomalies = 0
	sum.MaxLostUpdates = 0
	for _, o := range sum.Observations {
		if o.Anomalous() {
			sum.Anomalies++
		}
		if o.LostUpdates > sum.MaxLostUpdates {
			sum.MaxLostUpdates = o.LostUpdates
		}
	}
	if sum.Trials > 0 {
		sum.AnomalyRate = float64(sum.Anomalies) / float64(sum.Trials)
	}
}
