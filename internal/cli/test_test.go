package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDirs creates <root>/scenarios and returns it with the root.
func scenarioDirs(t *testing.T) (root, scenarios string) {
	t.Helper()
	root = t.TempDir()
	scenarios = filepath.Join(root, "scenarios")
	require.NoError(t, os.Mkdir(scenarios, 0755))
	return root, scenarios
}

// writeTestScenario writes a one-discovery scenario that asserts count
// DISCOVERED publications.
func writeTestScenario(t *testing.T, dir, name string, count int) {
	t.Helper()
	catalog, err := filepath.Abs("testdata/catalog")
	require.NoError(t, err)

	src := fmt.Sprintf(`name: %s
description: "Discover a rescue"
catalog: %s
events:
  - category: DISCOVERED
    observer: obs-a
    elapsed_ms: 0
    discovery: {urn: "urn:rescue-victim", inputs: {victim-id: v1}}
assertions:
  - type: trace_count
    category: DISCOVERED
    count: %d
`, name, catalog, count)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(src), 0644))
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, _, err := executeCommand(t, "test", "../harness/testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ unlock_then_triage")
	assert.Contains(t, out, "✓ two_observers_merge")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTest_UpdateThenCompare(t *testing.T) {
	root, scenarios := scenarioDirs(t)
	writeTestScenario(t, scenarios, "discover", 1)

	// no golden file yet: assertions only
	out, _, err := executeCommand(t, "test", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ discover")

	_, _, err = executeCommand(t, "test", "--update", scenarios)
	require.NoError(t, err)
	golden := filepath.Join(root, "golden", "discover.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"discover","trace":["seq=2 cause=1 DISCOVERED obs-a @0 jag-1 urn:rescue-victim {victim-id:v1}"]}`,
		string(data))

	_, _, err = executeCommand(t, "test", scenarios)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"discover","trace":[]}`), 0644))
	out, _, err = executeCommand(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ discover")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_GoldenFlag(t *testing.T) {
	_, scenarios := scenarioDirs(t)
	writeTestScenario(t, scenarios, "discover", 1)
	goldenDir := filepath.Join(t.TempDir(), "elsewhere")

	_, _, err := executeCommand(t, "test", "--update", "--golden", goldenDir, scenarios)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(goldenDir, "discover.golden"))
}

func TestTest_FailingScenarioJSON(t *testing.T) {
	_, scenarios := scenarioDirs(t)
	writeTestScenario(t, scenarios, "passes", 1)
	writeTestScenario(t, scenarios, "fails", 2)

	out, _, err := executeCommand(t, "test", "--format", "json", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	// WalkDir visits files in lexical order
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "fails", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "1 publications")
}

func TestTest_ParallelKeepsFileOrder(t *testing.T) {
	_, scenarios := scenarioDirs(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		writeTestScenario(t, scenarios, name, 1)
	}

	out, _, err := executeCommand(t, "test", "--parallel", "4", "--format", "json", scenarios)
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 4)
	for i, name := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, name, resp.Data.Scenarios[i].Name)
		assert.True(t, resp.Data.Scenarios[i].Pass)
	}

	_, _, err = executeCommand(t, "test", "--parallel", "0", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_Filter(t *testing.T) {
	_, scenarios := scenarioDirs(t)
	writeTestScenario(t, scenarios, "passes", 1)
	writeTestScenario(t, scenarios, "fails", 2)

	out, _, err := executeCommand(t, "test", "--filter", "pass*", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	out, _, err = executeCommand(t, "test", "--filter", "nothing*", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_LoadError(t *testing.T) {
	_, scenarios := scenarioDirs(t)
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, _, err := executeCommand(t, "test", scenarios)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTest_MissingDirectory(t *testing.T) {
	_, _, err := executeCommand(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles_SkipsGolden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, f := range []string{"a.yaml", "b.yml", "notes.txt", "golden/c.yaml", "nested/d.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "nested", "d.yaml"),
	}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}
