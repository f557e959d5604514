package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Account       string
	Initial       string
	Seed          []string
	Concurrency   int
	Delta         string
	Lock          string
	Isolation     string
	ThinkTime     time.Duration
	Trials        int
	FailOnAnomaly bool

	// IDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator experiment.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a lost-update experiment",
		Long: `Run N concurrent read-modify-write transactions against one account.

Every trial allocates a fresh workspace, seeds --account with --initial plus
any --seed entries, and runs --concurrency units that each read the balance,
sleep --think-time, and write back balance + --delta. With --lock none the
read is plain and updates can be lost; with --lock for_update every unit
locks the row first and the final balance equals the serial result.

Anomalies are reported, not treated as errors, unless --fail-on-anomaly.

Examples:
  txiso run --concurrency 30 --delta 10 --think-time 5ms --trials 5
  txiso run --lock for_update --trials 5
  txiso run --isolation serializable --driver pgx --dsn postgres://localhost/txiso`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Account, "account", "Alice", "account every unit increments")
	f.StringVar(&opts.Initial, "initial", "1000", "initial balance of --account")
	f.StringArrayVar(&opts.Seed, "seed", []string{"Bob=0"}, "extra name=amount balances to seed (repeatable)")
	f.IntVar(&opts.Concurrency, "concurrency", 30, "number of concurrent units")
	f.StringVar(&opts.Delta, "delta", "10", "amount each unit adds")
	f.StringVar(&opts.Lock, "lock", "none", "read mode (none|for_update)")
	f.StringVar(&opts.Isolation, "isolation", "read_committed", "isolation level (read_committed|repeatable_read|serializable)")
	f.DurationVar(&opts.ThinkTime, "think-time", 0, "sleep between read and write")
	f.IntVar(&opts.Trials, "trials", 1, "number of trials, each in a fresh workspace")
	f.BoolVar(&opts.FailOnAnomaly, "fail-on-anomaly", false, "exit 1 when any trial diverges from the serial result")

	return cmd
}

// plan builds the experiment plan from flags.
func (o *RunOptions) plan() (experiment.Plan, error) {
	initial, err := decimal.NewFromString(o.Initial)
	if err != nil {
		return experiment.Plan{}, fmt.Errorf("--initial: %w", err)
	}
	delta, err := decimal.NewFromString(o.Delta)
	if err != nil {
		return experiment.Plan{}, fmt.Errorf("--delta: %w", err)
	}
	lock, err := store.ParseLockMode(o.Lock)
	if err != nil {
		return experiment.Plan{}, fmt.Errorf("--lock: %w", err)
	}
	iso, err := store.ParseIsolation(o.Isolation)
	if err != nil {
		return experiment.Plan{}, fmt.Errorf("--isolation: %w", err)
	}
	if o.Concurrency < 1 {
		return experiment.Plan{}, fmt.Errorf("--concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.Trials < 1 {
		return experiment.Plan{}, fmt.Errorf("--trials must be at least 1, got %d", o.Trials)
	}

	seed := []experiment.Entry{{Name: o.Account, Money: initial}}
	for _, s := range o.Seed {
		e, err := experiment.ParseEntry(s)
		if err != nil {
			return experiment.Plan{}, fmt.Errorf("--seed: %w", err)
		}
		seed = append(seed, e)
	}

	return experiment.Plan{
		Seed:        seed,
		Account:     o.Account,
		Concurrency: o.Concurrency,
		Delta:       delta,
		Lock:        lock,
		Isolation:   iso,
		ThinkTime:   o.ThinkTime,
	}, nil
}

func runExperiment(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	plan, err := opts.plan()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid experiment", err)
	}

	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	s, err := opts.connect(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open store", err)
	}
	defer opts.closeStore(s)

	expOpts := []experiment.Option{
		experiment.WithLogger(opts.Logger),
		experiment.WithRecorder(opts.Metrics),
	}
	if opts.IDGenerator != nil {
		expOpts = append(expOpts, experiment.WithIDGenerator(opts.IDGenerator))
	}

	formatter.VerboseLog("running %d trial(s) of %d units (lock=%s, isolation=%s)",
		opts.Trials, plan.Concurrency, plan.Lock, store.IsolationName(plan.Isolation))
	sum, err := experiment.New(s, expOpts...).Trials(ctx, plan, opts.Trials)
	if err != nil {
		if opts.Format != "json" {
			writeSummaryText(formatter.Writer, plan, sum)
		}
		return formatter.FailExperiment("experiment failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(sum); err != nil {
			return err
		}
	} else {
		writeSummaryText(formatter.Writer, plan, sum)
	}

	if opts.FailOnAnomaly && sum.Anomalies > 0 {
		msg := fmt.Sprintf("%d of %d trial(s) diverged from the serial result", sum.Anomalies, sum.Trials)
		if opts.Format != "json" {
			fmt.Fprintf(formatter.Writer, "✗ %s\n", msg)
		}
		return NewExitError(ExitFailure, msg)
	}
	return nil
}

func writeSummaryText(w io.Writer, plan experiment.Plan, sum experiment.TrialSummary) {
	for i, obs := range sum.Observations {
		fmt.Fprintf(w, "trial %d  run %s  workspace %d  lock=%s isolation=%s\n",
			i+1, obs.RunID, obs.Workspace, plan.Lock, store.IsolationName(plan.Isolation))
		fmt.Fprintf(w, "  expected  %s\n", joinBalances(obs.Expected))
		fmt.Fprintf(w, "  observed  %s\n", joinBalances(obs.Observed))
		if obs.Anomalous() {
			fmt.Fprintf(w, "  ✗ lost updates: %d (committed %d, failed %d)\n", obs.LostUpdates, obs.Stats.Committed, obs.Stats.Failed)
		} else {
			fmt.Fprintf(w, "  ✓ matches serial result (committed %d)\n", obs.Stats.Committed)
		}
	}
	fmt.Fprintf(w, "\nSummary: %d trial(s), %d anomalous, anomaly rate %.2f, max lost updates %d\n",
		sum.Trials, sum.Anomalies, sum.AnomalyRate, sum.MaxLostUpdates)
}

func joinBalances(balances []store.Balance) string {
	parts := make([]string, 0, len(balances))
	for _, b := range balances {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " ")
}
