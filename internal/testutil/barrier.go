package testutil

import (
	"context"
	"database/sql"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/txiso/internal/store"
)

// Barrier releases every waiter once n parties have arrived.
type Barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
	once    sync.Once
}

// NewBarrier creates a barrier for n parties. A barrier for zero parties
// never blocks.
func NewBarrier(n int) *Barrier {
	return &Barrier{n: n, release: make(chan struct{})}
}

// Await blocks until n parties have called Await or ctx ends. Parties
// arriving after the release pass straight through.
func (b *Barrier) Await(ctx context.Context) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived >= b.n {
		b.once.Do(func() { close(b.release) })
	}
	b.mu.Unlock()

	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadBarrierStore wraps a store so that every unlocked Balance read waits
// at a barrier before returning. With the barrier sized to the runner's
// concurrency, all units read before any unit writes: the worst-case
// interleaving for the lost update, made deterministic.
//
// Locked reads pass straight through; holding a row lock at a barrier would
// deadlock.
type ReadBarrierStore struct {
	store.Store
	barrier *Barrier
}

// NewReadBarrierStore wraps s with a barrier for n parties.
func NewReadBarrierStore(s store.Store, n int) *ReadBarrierStore {
	return &ReadBarrierStore{Store: s, barrier: NewBarrier(n)}
}

// Begin wraps the transaction of the underlying store.
func (s *ReadBarrierStore) Begin(ctx context.Context, opts *sql.TxOptions) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &barrierTx{Tx: tx, barrier: s.barrier}, nil
}

type barrierTx struct {
	store.Tx
	barrier *Barrier
}

func (t *barrierTx) Balance(ctx context.Context, ws store.WorkspaceID, name string, lock store.LockMode) (decimal.Decimal, error) {
	v, err := t.Tx.Balance(ctx, ws, name, lock)
	if err != nil || lock == store.LockForUpdate {
		return v, err
	}
	if err := t.barrier.Await(ctx); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}
