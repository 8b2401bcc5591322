package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_ResolvesPaths(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/collect.yaml")
	require.NoError(t, err)

	assert.Equal(t, "collect-and-check", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "worlds", "cavern.yaml"), scenario.World)
	assert.Len(t, scenario.Steps, 3)
	assert.Len(t, scenario.Assertions, 4)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
world: w.yaml
assertion:
  - type: checked_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse scenario")
}

func TestLoadScenario_MissingWorldFile(t *testing.T) {
	path := writeScenario(t, `
name: no-world
world: nope.yaml
steps:
  - command: recalculate_accessibility
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world file")
}

func TestLoadScenario_StepsAndReplayExclusive(t *testing.T) {
	dir := t.TempDir()
	world := filepath.Join(dir, "w.yaml")
	log := filepath.Join(dir, "run.jsonl")
	require.NoError(t, os.WriteFile(world, []byte("regions: {Menu: {}}"), 0o644))
	require.NoError(t, os.WriteFile(log, []byte("{}"), 0o644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: both
world: w.yaml
steps:
  - command: recalculate_accessibility
replay:
  log: run.jsonl
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidateStep(t *testing.T) {
	assert.Error(t, validateStep(&Step{Command: StepAddItem}))
	assert.Error(t, validateStep(&Step{Command: StepCheck}))
	assert.Error(t, validateStep(&Step{Command: "teleport"}))
	assert.Error(t, validateStep(&Step{}))
	assert.NoError(t, validateStep(&Step{Command: StepClearEvents}))
	assert.NoError(t, validateStep(&Step{Command: StepCheck, Location: "Chest"}))
}

func TestValidateAssertion(t *testing.T) {
	assert.Error(t, validateAssertion(&Assertion{Type: AssertInventory}, false))
	assert.Error(t, validateAssertion(&Assertion{Type: AssertRegionReachable}, false))
	assert.Error(t, validateAssertion(&Assertion{Type: AssertReplayOutcome, Outcome: "passed"}, false))
	assert.Error(t, validateAssertion(&Assertion{Type: "vibes"}, false))
	assert.NoError(t, validateAssertion(&Assertion{Type: AssertReplayOutcome, Outcome: "passed"}, true))
	assert.NoError(t, validateAssertion(&Assertion{Type: AssertCheckedCount, Count: 2}, false))
}
