package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunWithGolden_Testdata runs every scenario in testdata and compares its
// report with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden_Testdata -update
func TestRunWithGolden_Testdata(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(f)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestReportSnapshot_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/lost_update_unprotected.yaml")
	require.NoError(t, err)

	var reports []string
	for i := 0; i < 2; i++ {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		snap, err := NewReportSnapshot(scenario, result)
		require.NoError(t, err)
		data, err := snap.Marshal()
		require.NoError(t, err)
		reports = append(reports, string(data))
	}
	assert.Equal(t, reports[0], reports[1])
	assert.NotContains(t, reports[0], "workspace\":")
}

func TestReportSnapshot_Fields(t *testing.T) {
	scenario := transferScenario()
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	snap, err := NewReportSnapshot(scenario, result)
	require.NoError(t, err)
	assert.Equal(t, "transfer", snap.ScenarioName)
	assert.Equal(t, "run-transfer", snap.RunID)
	assert.Equal(t, []string{"Alice=990", "Bob=10"}, snap.Expected)
	assert.Equal(t, 1, snap.Trials)
	assert.True(t, snap.Pass)
	assert.Len(t, snap.Trace, 5)
}

func TestAssertGolden_ExistingResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/sequential_transfer.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, scenario, result))
}
