package experiment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/txiso/internal/store"
)

// Increments describes one concurrent read-modify-write run.
type Increments struct {
	// Account is the target balance name.
	Account string

	// Concurrency is the number of units N. Must be at least 1.
	Concurrency int

	// Delta is added by every unit.
	Delta decimal.Decimal

	// Lock selects the read mode. LockForUpdate makes competing units block
	// on the row until the holder commits.
	Lock store.LockMode

	// Isolation is the level every unit runs at. The zero value
	// (sql.LevelDefault) runs at READ COMMITTED.
	Isolation sql.IsolationLevel

	// ThinkTime is slept between the read and the write. It widens the race
	// window; zero disables it.
	ThinkTime time.Duration
}

func (in Increments) validate() error {
	if strings.TrimSpace(in.Account) == "" {
		return errEmptyName
	}
	if in.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", in.Concurrency)
	}
	if in.ThinkTime < 0 {
		return fmt.Errorf("think time must not be negative, got %s", in.ThinkTime)
	}
	return nil
}

func (in Increments) txOptions() *sql.TxOptions {
	level := in.Isolation
	if level == sql.LevelDefault {
		level = sql.LevelReadCommitted
	}
	return &sql.TxOptions{Isolation: level}
}

// RunStats summarizes a finished run.
type RunStats struct {
	Committed int           `json:"committed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`

	// Reads holds the value each unit read, indexed by unit. Units that
	// failed before reading hold an invalid (null) entry.
	Reads []decimal.NullDecimal `json:"reads"`
}

// Collisions counts units that read a value some earlier unit (by index)
// had already read. Units that never read are skipped. Each collision
// among committed units is one lost update.
func (s RunStats) Collisions() int {
	seen := make(map[string]struct{}, len(s.Reads))
	n := 0
	for _, r := range s.Reads {
		if !r.Valid {
			continue
		}
		k := r.Decimal.String()
		if _, ok := seen[k]; ok {
			n++
			continue
		}
		seen[k] = struct{}{}
	}
	return n
}

// Runner launches concurrent units against one store.
type Runner struct {
	store    store.Store
	logger   *slog.Logger
	recorder Recorder
}

// NewRunner creates a runner over s.
func NewRunner(s store.Store, opts ...Option) *Runner {
	cfg := newSettings(opts)
	return &Runner{store: s, logger: cfg.logger, recorder: cfg.recorder}
}

// RunConcurrentIncrements launches in.Concurrency units, each on its own
// connection and transaction:
//
//  1. read the account balance (FOR UPDATE when in.Lock says so)
//  2. compute read + delta
//  3. sleep ThinkTime
//  4. write the new value unconditionally
//  5. commit
//
// It blocks until every unit has finished. A failing unit never cancels its
// siblings; the first failure is returned once all units are done. Failed
// units are not retried.
func (r *Runner) RunConcurrentIncrements(ctx context.Context, ws store.WorkspaceID, in Increments) (RunStats, error) {
	if err := in.validate(); err != nil {
		return RunStats{}, newError(CodeInvalidPlan, "increment", err)
	}
	account := NormalizeName(in.Account)
	opts := in.txOptions()

	r.logger.Debug("increments starting",
		"workspace", int64(ws),
		"account", account,
		"concurrency", in.Concurrency,
		"delta", in.Delta.String(),
		"lock", in.Lock.String(),
		"isolation", store.IsolationName(opts.Isolation),
	)

	reads := make([]decimal.NullDecimal, in.Concurrency)
	var committed, failed atomic.Int64
	start := time.Now()

	// Plain Group: no derived context, so one failure never cancels the rest.
	var g errgroup.Group
	for i := 0; i < in.Concurrency; i++ {
		g.Go(func() error {
			unitStart := time.Now()
			read, err := r.unit(ctx, ws, account, in, opts)
			reads[i] = read
			elapsed := time.Since(unitStart)
			if err != nil {
				failed.Add(1)
				r.recorder.UnitFinished(in.Lock, false, elapsed)
				r.logger.Warn("unit failed", "unit", i, "workspace", int64(ws), "error", err)
				return &Error{Code: CodeUnitFailed, Op: "increment", Unit: i, Err: err}
			}
			committed.Add(1)
			r.recorder.UnitFinished(in.Lock, true, elapsed)
			return nil
		})
	}
	err := g.Wait()

	stats := RunStats{
		Committed: int(committed.Load()),
		Failed:    int(failed.Load()),
		Elapsed:   time.Since(start),
		Reads:     reads,
	}
	r.logger.Info("increments finished",
		"workspace", int64(ws),
		"committed", stats.Committed,
		"failed", stats.Failed,
		"collisions", stats.Collisions(),
		"elapsed", stats.Elapsed,
	)
	return stats, err
}

// unit runs one read-modify-write transaction and returns the value it
// read, or a null value when it failed before reading.
func (r *Runner) unit(ctx context.Context, ws store.WorkspaceID, account string, in Increments, opts *sql.TxOptions) (decimal.NullDecimal, error) {
	tx, err := r.store.Begin(ctx, opts)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	value, err := tx.Balance(ctx, ws, account, in.Lock)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	read := decimal.NewNullDecimal(value)
	next := value.Add(in.Delta)

	if in.ThinkTime > 0 {
		timer := time.NewTimer(in.ThinkTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return read, ctx.Err()
		}
	}

	if err := tx.SetBalance(ctx, ws, account, next); err != nil {
		return read, err
	}
	if err := tx.Commit(); err != nil {
		return read, err
	}
	return read, nil
}
