package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedThenBalances(t *testing.T) {
	db := sqliteArgs(t)
	_, err := execute(t, append(db, "init")...)
	require.NoError(t, err)
	_, err = execute(t, append(db, "allocate")...)
	require.NoError(t, err)

	out, err := execute(t, append(db, "seed", "--workspace", "1", "Bob=0", "Alice=1000")...)
	require.NoError(t, err)
	assert.Equal(t, "✓ seeded 2 balance(s) into workspace 1\n", out)

	out, err = execute(t, append(db, "balances", "--workspace", "1")...)
	require.NoError(t, err)
	assert.Equal(t, "Alice=1000\nBob=0\n", out)

	// Reading twice returns the same set.
	again, err := execute(t, append(db, "balances", "--workspace", "1")...)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestBalancesJSON(t *testing.T) {
	db := sqliteArgs(t)
	_, err := execute(t, append(db, "init")...)
	require.NoError(t, err)
	_, err = execute(t, append(db, "seed", "--workspace", "4", "Alice=12")...)
	require.NoError(t, err)

	out, err := execute(t, append(db, "--format", "json", "balances", "--workspace", "4")...)
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Workspace int64 `json:"workspace"`
			Balances  []struct {
				Name  string `json:"name"`
				Money string `json:"money"`
			} `json:"balances"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(4), resp.Data.Workspace)
	require.Len(t, resp.Data.Balances, 1)
	assert.Equal(t, "Alice", resp.Data.Balances[0].Name)
	assert.Equal(t, "12", resp.Data.Balances[0].Money)
}

func TestBalancesEmptyWorkspace(t *testing.T) {
	db := sqliteArgs(t)
	_, err := execute(t, append(db, "init")...)
	require.NoError(t, err)

	out, err := execute(t, append(db, "balances", "--workspace", "99")...)
	require.NoError(t, err)
	assert.Equal(t, "workspace 99 is empty\n", out)
}

func TestSeedInvalidEntry(t *testing.T) {
	for _, arg := range []string{"Alice", "Alice=lots"} {
		t.Run(arg, func(t *testing.T) {
			out, err := execute(t, "--driver", "memory", "seed", "--workspace", "1", arg)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "invalid entry")
		})
	}
}

func TestSeedEmptyNameRejected(t *testing.T) {
	out, err := execute(t, "--driver", "memory", "seed", "--workspace", "1", " =5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [STORE]")
}
