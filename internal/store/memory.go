package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process engine with read-committed visibility.
//
// Every row carries an exclusive lock. FOR UPDATE reads and all writes take
// it, and it is held until the owning transaction commits or rolls back.
// Plain reads never block and see the latest committed value (or the
// transaction's own pending write). That is the subset of Postgres
// READ COMMITTED behaviour the experiment relies on.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memRow
	balances []*memBalance
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

type memRow struct {
	value decimal.Decimal
	lock  chan struct{}
	owner *memTx
}

type memBalance struct {
	ws   WorkspaceID
	name string
	row  *memRow
}

func newMemRow(v decimal.Decimal) *memRow {
	return &memRow{value: v, lock: make(chan struct{}, 1)}
}

// NewMemoryStore returns an empty engine. Like a fresh database it has no
// counter row until Migrate runs.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memRow)}
}

// Migrate seeds next_workspace_id with 1 if it is absent.
func (s *MemoryStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.counters[NextWorkspaceKey]; !ok {
		s.counters[NextWorkspaceKey] = newMemRow(decimal.NewFromInt(1))
	}
	return nil
}

// Close marks the engine closed. Open transactions may still finish.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = errors.New("memory store: closed")

// Begin starts a transaction. Only READ COMMITTED (and the default, which is
// READ COMMITTED) are implemented.
func (s *MemoryStore) Begin(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts != nil && opts.Isolation != sql.LevelDefault && opts.Isolation != sql.LevelReadCommitted {
		return nil, fmt.Errorf("memory store: isolation %s not supported", opts.Isolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	return &memTx{s: s, pending: make(map[*memRow]decimal.Decimal)}, nil
}

// Balances returns committed balances in ws ordered by name.
func (s *MemoryStore) Balances(ctx context.Context, ws WorkspaceID) ([]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Balance{}
	for _, b := range s.balances {
		if b.ws == ws {
			out = append(out, Balance{Name: b.name, Money: b.row.value})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetCounter creates or overwrites a committed counter directly. It is a
// provisioning helper for tests and tooling.
func (s *MemoryStore) SetCounter(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.counters[key]; ok {
		r.value = decimal.NewFromInt(value)
		return
	}
	s.counters[key] = newMemRow(decimal.NewFromInt(value))
}

type memTx struct {
	s       *MemoryStore
	pending map[*memRow]decimal.Decimal
	inserts []*memBalance
	held    []*memRow
	done    bool
}

// lockRow blocks until t owns r's lock or ctx ends.
func (t *memTx) lockRow(ctx context.Context, r *memRow) error {
	t.s.mu.Lock()
	owned := r.owner == t
	t.s.mu.Unlock()
	if owned {
		return nil
	}

	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.s.mu.Lock()
	r.owner = t
	t.held = append(t.held, r)
	t.s.mu.Unlock()
	return nil
}

// current returns the value t sees for r: its own pending write, else the
// latest committed value.
func (t *memTx) current(r *memRow) decimal.Decimal {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if v, ok := t.pending[r]; ok {
		return v
	}
	return r.value
}

func (t *memTx) counterRow(key string) (*memRow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.counters[key]
	if !ok {
		return nil, fmt.Errorf("counter %q: %w", key, ErrCounterMissing)
	}
	return r, nil
}

// balanceRows returns committed rows plus t's own inserts matching (ws, name).
func (t *memTx) balanceRows(ws WorkspaceID, name string) []*memRow {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var rows []*memRow
	for _, b := range t.s.balances {
		if b.ws == ws && b.name == name {
			rows = append(rows, b.row)
		}
	}
	for _, b := range t.inserts {
		if b.ws == ws && b.name == name {
			rows = append(rows, b.row)
		}
	}
	return rows
}

func (t *memTx) live() error {
	if t.done {
		return sql.ErrTxDone
	}
	return nil
}

func (t *memTx) Counter(ctx context.Context, key string, lock LockMode) (int64, error) {
	if err := t.live(); err != nil {
		return 0, err
	}
	r, err := t.counterRow(key)
	if err != nil {
		return 0, err
	}
	if lock == LockForUpdate {
		if err := t.lockRow(ctx, r); err != nil {
			return 0, fmt.Errorf("lock counter %q: %w", key, err)
		}
	}
	return t.current(r).IntPart(), nil
}

func (t *memTx) SetCounter(ctx context.Context, key string, value int64) error {
	if err := t.live(); err != nil {
		return err
	}
	r, err := t.counterRow(key)
	if err != nil {
		return err
	}
	if err := t.lockRow(ctx, r); err != nil {
		return fmt.Errorf("write counter %q: %w", key, err)
	}
	t.s.mu.Lock()
	t.pending[r] = decimal.NewFromInt(value)
	t.s.mu.Unlock()
	return nil
}

func (t *memTx) InsertBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error {
	if err := t.live(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.inserts = append(t.inserts, &memBalance{ws: ws, name: name, row: newMemRow(money)})
	return nil
}

func (t *memTx) Balance(ctx context.Context, ws WorkspaceID, name string, lock LockMode) (decimal.Decimal, error) {
	if err := t.live(); err != nil {
		return decimal.Zero, err
	}
	rows := t.balanceRows(ws, name)
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("balance %q in workspace %d: %w", name, ws, ErrBalanceNotFound)
	}
	if lock == LockForUpdate {
		for _, r := range rows {
			if err := t.lockRow(ctx, r); err != nil {
				return decimal.Zero, fmt.Errorf("lock balance %q: %w", name, err)
			}
		}
	}
	return t.current(rows[0]), nil
}

func (t *memTx) SetBalance(ctx context.Context, ws WorkspaceID, name string, money decimal.Decimal) error {
	return t.update(ctx, ws, name, func(decimal.Decimal) decimal.Decimal { return money })
}

func (t *memTx) AddToBalance(ctx context.Context, ws WorkspaceID, name string, delta decimal.Decimal) error {
	return t.update(ctx, ws, name, func(cur decimal.Decimal) decimal.Decimal { return cur.Add(delta) })
}

// update locks every matching row, then applies fn to the value visible after
// the lock is held. Like an UPDATE under READ COMMITTED, that is the latest
// committed version.
func (t *memTx) update(ctx context.Context, ws WorkspaceID, name string, fn func(decimal.Decimal) decimal.Decimal) error {
	if err := t.live(); err != nil {
		return err
	}
	rows := t.balanceRows(ws, name)
	if len(rows) == 0 {
		return fmt.Errorf("balance %q in workspace %d: %w", name, ws, ErrBalanceNotFound)
	}
	for _, r := range rows {
		if err := t.lockRow(ctx, r); err != nil {
			return fmt.Errorf("write balance %q: %w", name, err)
		}
		next := fn(t.current(r))
		t.s.mu.Lock()
		t.pending[r] = next
		t.s.mu.Unlock()
	}
	return nil
}

func (t *memTx) Commit() error {
	if err := t.live(); err != nil {
		return err
	}
	t.s.mu.Lock()
	for r, v := range t.pending {
		r.value = v
	}
	t.s.balances = append(t.s.balances, t.inserts...)
	t.s.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

// finish releases every lock t holds.
func (t *memTx) finish() {
	t.done = true
	t.s.mu.Lock()
	held := t.held
	t.held = nil
	for _, r := range held {
		r.owner = nil
	}
	t.s.mu.Unlock()
	for _, r := range held {
		<-r.lock
	}
}
