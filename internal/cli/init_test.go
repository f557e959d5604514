package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txiso/internal/store"
)

// sqliteArgs returns the global flags selecting a fresh SQLite database.
func sqliteArgs(t *testing.T) []string {
	t.Helper()
	return []string{"--driver", "sqlite3", "--dsn", filepath.Join(t.TempDir(), "txiso.db")}
}

func TestInitIdempotent(t *testing.T) {
	db := sqliteArgs(t)

	out, err := execute(t, append(db, "init")...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ schema ready (sqlite3)")

	out, err = execute(t, append(db, "--format", "json", "init")...)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   InitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, InitResult{Driver: "sqlite3", Migrated: true}, resp.Data)
}

func TestAllocateSequentialIDs(t *testing.T) {
	db := sqliteArgs(t)
	_, err := execute(t, append(db, "init")...)
	require.NoError(t, err)

	out, err := execute(t, append(db, "allocate")...)
	require.NoError(t, err)
	assert.Equal(t, "workspace 1\n", out)

	out, err = execute(t, append(db, "allocate")...)
	require.NoError(t, err)
	assert.Equal(t, "workspace 2\n", out)
}

func TestAllocateConcurrentDistinct(t *testing.T) {
	out, err := execute(t, "--driver", "memory", "--format", "json", "allocate", "--count", "10")
	require.NoError(t, err)

	var resp struct {
		Data AllocateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Workspaces, 10)
	for i, id := range resp.Data.Workspaces {
		assert.Equal(t, store.WorkspaceID(i+1), id)
	}
}

func TestAllocateBadCount(t *testing.T) {
	_, err := execute(t, "--driver", "memory", "allocate", "--count", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--count must be at least 1")
}

func TestAllocateBeforeInit(t *testing.T) {
	out, err := execute(t, append(sqliteArgs(t), "allocate")...)
	require.Error(t, err)
	assert.NotEqual(t, ExitSuccess, GetExitCode(err))
	assert.Contains(t, out, "failed to allocate workspaces")
}
