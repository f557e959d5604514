package experiment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/txiso/internal/store"
)

// AllocateWorkspace reserves a fresh workspace id.
//
// The counter is read under an exclusive lock and bumped to value+1 in the
// same transaction, so concurrent callers serialize on the counter row and
// each receives a distinct value. The value read is returned.
//
// A missing counter row is a setup precondition failure; "txiso init"
// provisions it.
func AllocateWorkspace(ctx context.Context, s store.Store) (store.WorkspaceID, error) {
	tx, err := s.Begin(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, newError(CodeStore, "allocate", err)
	}
	defer tx.Rollback()

	next, err := tx.Counter(ctx, store.NextWorkspaceKey, store.LockForUpdate)
	if err != nil {
		if errors.Is(err, store.ErrCounterMissing) {
			return 0, newError(CodeSetupPrecondition, "allocate",
				fmt.Errorf("%w (run txiso init)", err))
		}
		return 0, newError(CodeStore, "allocate", err)
	}

	if err := tx.SetCounter(ctx, store.NextWorkspaceKey, next+1); err != nil {
		return 0, newError(CodeStore, "allocate", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, newError(CodeStore, "allocate", err)
	}
	return store.WorkspaceID(next), nil
}

// AllocateWorkspaces runs m allocations concurrently, each in its own
// transaction, and returns the ids in ascending order. Every allocation runs
// to completion; the first failure is returned.
func AllocateWorkspaces(ctx context.Context, s store.Store, m int) ([]store.WorkspaceID, error) {
	if m < 1 {
		return nil, newError(CodeStore, "allocate", fmt.Errorf("count must be at least 1, got %d", m))
	}
	ids := make([]store.WorkspaceID, m)
	var g errgroup.Group
	for i := 0; i < m; i++ {
		g.Go(func() error {
			id, err := AllocateWorkspace(ctx, s)
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}
