package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateHarnessScenarios(t *testing.T) {
	out, err := execute(t, "validate", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ All scenarios valid")
}

func TestValidateHarnessScenariosJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", harnessScenarios)
	require.NoError(t, err, out)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 4, resp.Data.Files)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	_, err := execute(t, "validate", "/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `name: bad
description: "concurrency below one"
seed:
  - { name: Alice, money: 1000 }
experiment:
  account: Alice
  concurrency: 0
  delta: 10
assertions:
  - type: matches_serial
    value: true
`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "bad.yaml")
	assert.Contains(t, out, "concurrency")
}

func TestValidateSemanticViolation(t *testing.T) {
	dir := t.TempDir()
	// Both sections pass the schema but are mutually exclusive.
	writeFile(t, dir, "both.yaml", `name: both
description: "experiment and transfer together"
seed:
  - { name: Alice, money: 1000 }
experiment:
  account: Alice
  concurrency: 2
  delta: 10
transfer:
  - { account: Alice, delta: -10 }
assertions:
  - type: matches_serial
    value: true
`)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Contains(t, resp.Data.Errors[0].Message, "mutually exclusive")
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
}

func TestValidateReportsEveryFile(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "sequential_transfer")
	writeFile(t, dir, "no_name.yaml", `description: "missing name"
seed:
  - { name: Alice, money: 1 }
transfer:
  - { account: Alice, delta: 1 }
assertions:
  - type: matches_serial
    value: true
`)
	writeFile(t, dir, "no_assertions.yaml", `name: no_assertions
description: "nothing to check"
seed:
  - { name: Alice, money: 1 }
transfer:
  - { account: Alice, delta: 1 }
`)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Files)

	files := map[string]bool{}
	for _, e := range resp.Data.Errors {
		files[filepath.Base(e.File)] = true
	}
	assert.True(t, files["no_name.yaml"])
	assert.True(t, files["no_assertions.yaml"])
	assert.False(t, files["sequential_transfer.yaml"])
}

func TestValidateScenarioFile(t *testing.T) {
	assert.Empty(t, validateScenarioFile(filepath.Join(harnessScenarios, "lost_update_protected.yaml")))

	errs := validateScenarioFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].File, "missing.yaml")
}

func TestValidateVerboseOutput(t *testing.T) {
	out, err := execute(t, "--verbose", "validate", harnessScenarios)
	require.NoError(t, err)
	// Verbose lines go to stderr, stdout only carries the verdict.
	assert.NotContains(t, out, "Validating")
	assert.Contains(t, out, "✓ All scenarios valid")
}
