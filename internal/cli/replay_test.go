package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/harness"
	"github.com/roach88/reflow/internal/journal"
)

// Same catalog as passingScenario but the handler writes a different
// key, so replaying its journal lands on a different fingerprint.
const divergedScenario = `name: counter-pass
initial:
  counter: 0
handlers:
  - event: counter/set
    action: set
    key: total
subscriptions:
  - id: counter
    kind: root
    key: counter
watch: [counter]
flow:
  - dispatch: [counter/set, 5]
`

// recordJournal runs a scenario once with a journal attached.
func recordJournal(t *testing.T, scenarioPath, dbPath string) {
	t.Helper()
	sc, err := harness.Load(scenarioPath)
	require.NoError(t, err)

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	res, err := harness.Run(sc, harness.WithRecorder(j))
	require.NoError(t, err)
	require.True(t, res.Pass)
}

func TestReplayCommand_Clean(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "counter.yaml", passingScenario)
	db := filepath.Join(dir, "run.db")
	recordJournal(t, path, db)

	out, err := execute(t, "replay", path, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay: counter-pass against "+db)
	assert.Contains(t, out, "✓ replayed 1 events, no divergence")
}

func TestReplayCommand_Divergence(t *testing.T) {
	dir := t.TempDir()
	recorded := writeScenario(t, dir, "counter.yaml", passingScenario)
	changed := writeScenario(t, dir, "changed.yaml", divergedScenario)
	db := filepath.Join(dir, "run.db")
	recordJournal(t, recorded, db)

	out, err := execute(t, "replay", changed, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ replayed 1 events, 1 divergences (first at seq 1)")
	assert.Contains(t, out, "fingerprint")
}

func TestReplayCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "counter.yaml", passingScenario)
	db := filepath.Join(dir, "run.db")
	recordJournal(t, path, db)

	out, err := execute(t, "replay", path, "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Clean)
	assert.Equal(t, 1, resp.Data.Replayed)
	assert.Equal(t, "counter-pass", resp.Data.Scenario)
	assert.Empty(t, resp.Data.Divergences)
}

func TestReplayCommand_JSONDivergence(t *testing.T) {
	dir := t.TempDir()
	recorded := writeScenario(t, dir, "counter.yaml", passingScenario)
	changed := writeScenario(t, dir, "changed.yaml", divergedScenario)
	db := filepath.Join(dir, "run.db")
	recordJournal(t, recorded, db)

	out, err := execute(t, "replay", changed, "--db", db, "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayReport `json:"data"`
		Error  *CLIError    `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Clean)
	require.NotEmpty(t, resp.Data.Divergences)
	assert.Equal(t, "counter/set", resp.Data.Divergences[0].Event)
	assert.Equal(t, "fingerprint", resp.Data.Divergences[0].Field)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "replay_divergence", resp.Error.Code)
}

func TestReplayCommand_MissingJournal(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "counter.yaml", passingScenario)

	_, err := execute(t, "replay", path, "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
}

func TestReplayCommand_RequiresDB(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "counter.yaml", passingScenario)

	_, err := execute(t, "replay", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
