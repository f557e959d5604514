package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresDSNEnv names the variable that enables tests against a live server.
const postgresDSNEnv = "TXISO_TEST_POSTGRES_DSN"

func openPostgres(t *testing.T, driver string) *SQLStore {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	s, err := Open(ctx, driver, dsn, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

// reserveWorkspace bumps the shared counter so parallel runs never collide.
func reserveWorkspace(t *testing.T, s Store) WorkspaceID {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	v, err := tx.Counter(ctx, NextWorkspaceKey, LockForUpdate)
	require.NoError(t, err)
	require.NoError(t, tx.SetCounter(ctx, NextWorkspaceKey, v+1))
	require.NoError(t, tx.Commit())
	return WorkspaceID(v)
}

func TestPostgres_Drivers(t *testing.T) {
	for _, driver := range []string{DriverPgx, DriverPQ} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openPostgres(t, driver)
			ws := reserveWorkspace(t, s)
			seedBalance(t, s, ws, "Alice", 1000)

			tx, err := s.Begin(ctx, nil)
			require.NoError(t, err)
			require.NoError(t, tx.AddToBalance(ctx, ws, "Alice", decimal.RequireFromString("-10.50")))
			require.NoError(t, tx.Commit())

			got, err := s.Balances(ctx, ws)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, got[0].Money.Equal(decimal.RequireFromString("989.5")), got[0].Money.String())
		})
	}
}

func TestPostgres_ForUpdateSerialisesWriters(t *testing.T) {
	ctx := context.Background()
	s := openPostgres(t, DriverPgx)
	ws := reserveWorkspace(t, s)
	seedBalance(t, s, ws, "Alice", 1000)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx, nil)
			if err != nil {
				errs <- err
				return
			}
			defer tx.Rollback()
			v, err := tx.Balance(ctx, ws, "Alice", LockForUpdate)
			if err != nil {
				errs <- err
				return
			}
			time.Sleep(2 * time.Millisecond)
			if err := tx.SetBalance(ctx, ws, "Alice", v.Add(decimal.NewFromInt(10))); err != nil {
				errs <- err
				return
			}
			errs <- tx.Commit()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Balances(ctx, ws)
	require.NoError(t, err)
	assert.True(t, got[0].Money.Equal(decimal.NewFromInt(1100)), got[0].Money.String())
}
