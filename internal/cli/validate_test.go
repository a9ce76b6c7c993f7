package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Minimal scenarios shared across command tests.
const passingScenario = `name: counter-pass
initial:
  counter: 0
handlers:
  - event: counter/set
    action: set
    key: counter
subscriptions:
  - id: counter
    kind: root
    key: counter
watch: [counter]
flow:
  - dispatch: [counter/set, 5]
assertions:
  - type: final-state
    key: counter
    value: 5
`

const failingScenario = `name: counter-fail
initial:
  counter: 0
handlers:
  - event: counter/set
    action: set
    key: counter
flow:
  - dispatch: [counter/set, 5]
assertions:
  - type: final-state
    key: counter
    value: 9
`

const brokenScenario = `name: broken
handelers:
  - event: x
`

// writeScenario writes a scenario file into dir and returns its path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "ok.yaml", passingScenario)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path)
}

func TestValidateCommand_SchemaViolations(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken.yaml", brokenScenario)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ "+path)
	assert.Contains(t, out, "handelers")
	assert.Contains(t, out, "1 of 1 files invalid")
}

func TestValidateCommand_SemanticViolation(t *testing.T) {
	content := `name: undeclared
handlers:
  - event: counter/set
    action: set
    key: counter
flow:
  - dispatch: [counter/reset]
`
	path := writeScenario(t, t.TempDir(), "undeclared.yaml", content)

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"counter/reset" is not a declared handler`)
}

func TestValidateCommand_MixedFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "good.yaml", passingScenario)
	bad := writeScenario(t, dir, "bad.yaml", brokenScenario)

	out, err := execute(t, "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ "+good)
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "1 of 2 files invalid")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommand_JSONValid(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "ok.yaml", passingScenario)

	out, err := execute(t, "validate", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Checked)
	assert.Equal(t, 0, resp.Data.Failed)
}

func TestValidateCommand_JSONInvalid(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "good.yaml", passingScenario)
	bad := writeScenario(t, dir, "bad.yaml", brokenScenario)

	out, err := execute(t, "validate", good, bad, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationReport `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_scenario", resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Checked)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Files, 2)
	assert.True(t, resp.Data.Files[0].Valid)
	assert.False(t, resp.Data.Files[1].Valid)
	assert.NotEmpty(t, resp.Data.Files[1].Errors)
}

func TestValidateCommand_RequiresArgs(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
}
