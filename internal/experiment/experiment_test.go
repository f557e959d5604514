package experiment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txiso/internal/store"
	"github.com/roach88/txiso/internal/testutil"
)

// fakeRecorder captures Recorder calls.
type fakeRecorder struct {
	mu          sync.Mutex
	committed   int
	failed      int
	allocations int
	trials      []int64
}

func (r *fakeRecorder) UnitFinished(_ store.LockMode, committed bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if committed {
		r.committed++
	} else {
		r.failed++
	}
}

func (r *fakeRecorder) WorkspaceAllocated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocations++
}

func (r *fakeRecorder) TrialObserved(_ store.LockMode, lost int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trials = append(r.trials, lost)
}

func ledger() []Entry {
	return []Entry{{Name: "Alice", Money: money(1000)}, {Name: "Bob", Money: money(0)}}
}

func TestTransfer_SequentialBaseline(t *testing.T) {
	engines := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return testutil.MemoryStore(t) },
		"sqlite": func(t *testing.T) store.Store { return testutil.SQLiteStore(t) },
		"pq":     func(t *testing.T) store.Store { return testutil.PostgresStore(t, store.DriverPQ) },
	}
	for name, open := range engines {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			ws := seeded(t, s)

			require.NoError(t, Transfer(ctx, s, ws, []Step{
				{Account: "Alice", Delta: money(-10)},
				{Account: "Bob", Delta: money(10)},
			}))

			got, err := ReadBalances(ctx, s, ws)
			require.NoError(t, err)
			assert.True(t, Verify([]store.Balance{bal("Alice", "990"), bal("Bob", "10")}, got).Match, "got %v", got)
		})
	}
}

func TestTransfer_MissingAccountRollsBack(t *testing.T) {
	ctx := context.Background()
	s := testutil.MemoryStore(t)
	ws := seeded(t, s)

	err := Transfer(ctx, s, ws, []Step{{Account: "Alice", Delta: money(-10)}, {Account: "Carol", Delta: money(10)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrBalanceNotFound)
	assert.Equal(t, "1000", alice(t, s, ws))
}

func TestExecute_Transfer(t *testing.T) {
	s := testutil.MemoryStore(t)
	e := New(s, WithLogger(testutil.DiscardLogger()), WithIDGenerator(NewFixedGenerator("run-1")))

	obs, err := e.Execute(context.Background(), Plan{
		Seed:     ledger(),
		Transfer: []Step{{Account: "Alice", Delta: money(-10)}, {Account: "Bob", Delta: money(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", obs.RunID)
	assert.Equal(t, ModeTransfer, obs.Mode)
	assert.Equal(t, store.WorkspaceID(1), obs.Workspace)
	assert.True(t, obs.Verdict.Match)
	assert.False(t, obs.Anomalous())
}

func TestExecute_ProtectedRecordsMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	e := New(testutil.MemoryStore(t), WithLogger(testutil.DiscardLogger()), WithRecorder(rec))

	obs, err := e.Execute(context.Background(), Plan{
		Seed:        ledger(),
		Account:     "Alice",
		Concurrency: 30,
		Delta:       money(10),
		Lock:        store.LockForUpdate,
	})
	require.NoError(t, err)
	assert.True(t, obs.Verdict.Match)
	assert.Equal(t, int64(0), obs.LostUpdates)
	assert.Equal(t, 30, obs.Stats.Committed)

	assert.Equal(t, 30, rec.committed)
	assert.Equal(t, 1, rec.allocations)
	assert.Equal(t, []int64{0}, rec.trials)
}

func TestExecute_WorstCaseAnomaly(t *testing.T) {
	const n = 30
	mem := testutil.MemoryStore(t)
	e := New(testutil.NewReadBarrierStore(mem, n), WithLogger(testutil.DiscardLogger()))

	obs, err := e.Execute(context.Background(), Plan{
		Seed:        ledger(),
		Account:     "Alice",
		Concurrency: n,
		Delta:       money(10),
	})
	require.NoError(t, err)
	assert.True(t, obs.Anomalous())
	assert.Equal(t, int64(n-1), obs.LostUpdates)
	assert.Equal(t, []Mismatch{{Name: "Alice", Expected: "1300", Observed: "1010"}}, obs.Verdict.Mismatches)
}

func TestExecute_MissingCounter(t *testing.T) {
	e := New(store.NewMemoryStore(), WithLogger(testutil.DiscardLogger()))
	obs, err := e.Execute(context.Background(), Plan{Seed: ledger(), Account: "Alice", Concurrency: 1, Delta: money(1)})
	assert.True(t, HasCode(err, CodeSetupPrecondition))
	assert.Equal(t, store.WorkspaceID(0), obs.Workspace)
}

func TestTrials_ProtectedIsDeterministic(t *testing.T) {
	e := New(testutil.MemoryStore(t), WithLogger(testutil.DiscardLogger()))

	sum, err := e.Trials(context.Background(), Plan{
		Seed:        ledger(),
		Account:     "Alice",
		Concurrency: 30,
		Delta:       money(10),
		Lock:        store.LockForUpdate,
		ThinkTime:   time.Millisecond,
	}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Trials)
	assert.Equal(t, 0, sum.Anomalies)
	assert.Zero(t, sum.AnomalyRate)
	assert.True(t, sum.DistinctWorkspaces)
	for _, o := range sum.Observations {
		assert.Equal(t, "Alice=1300", o.Observed[0].String())
	}
}

func TestTrials_UnprotectedShowsAnomaly(t *testing.T) {
	e := New(testutil.MemoryStore(t), WithLogger(testutil.DiscardLogger()))

	sum, err := e.Trials(context.Background(), Plan{
		Seed:        ledger(),
		Account:     "Alice",
		Concurrency: 30,
		Delta:       money(10),
		ThinkTime:   5 * time.Millisecond,
	}, 3)
	require.NoError(t, err)
	assert.Greater(t, sum.AnomalyRate, 0.0)
	assert.Greater(t, sum.MaxLostUpdates, int64(0))
	assert.True(t, sum.DistinctWorkspaces)
	for _, o := range sum.Observations {
		final := o.Observed[0].Money
		assert.True(t, final.LessThanOrEqual(money(1300)), "final %s exceeds serial result", final)
	}
}

func TestTrials_RejectsZero(t *testing.T) {
	e := New(testutil.MemoryStore(t))
	_, err := e.Trials(context.Background(), Plan{}, 0)
	assert.Error(t, err)
}

func TestTrials_StopsAtFirstFailure(t *testing.T) {
	e := New(testutil.MemoryStore(t), WithLogger(testutil.DiscardLogger()))
	sum, err := e.Trials(context.Background(), Plan{Seed: ledger(), Account: "Carol", Concurrency: 2, Delta: money(1)}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trial 1")
	assert.Equal(t, 0, sum.Trials)
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })

	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
}
