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

const scenarioDir = "../harness/testdata/scenarios"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "validate", "journal", "show"})

	for _, flag := range []string{"verbose", "format", "config"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", "x.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", assert.AnError)))
	assert.ErrorIs(t, WrapExitError(ExitFailure, "wrapped", assert.AnError), assert.AnError)
}

func TestRun_Text(t *testing.T) {
	out, err := execute(t, "run", filepath.Join(scenarioDir, "split_background.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "scenario split_background")
	assert.Contains(t, out, "step 3 set_trim b: VALIDATION")
	assert.Contains(t, out, "PASS split_background")
	assert.Contains(t, out, "1 passed, 0 failed")
}

func TestRun_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run",
		filepath.Join(scenarioDir, "split_background.yaml"),
		filepath.Join(scenarioDir, "foreground_fit.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Passed)
	assert.Equal(t, 0, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "split_background", resp.Data.Scenarios[0].Name)
	assert.Equal(t, []string{"split", "set trim", "reorder background", "mute"}, resp.Data.Scenarios[0].Commits)
}

func TestRun_FailingScenario(t *testing.T) {
	path := writeFile(t, "wrong.yaml", `
name: wrong_total
scene:
  background:
    - { name: a, kind: video, duration: 3s }
assertions:
  - { type: total, value: 5s }
`)
	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL wrong_total")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestRun_InvalidScenario(t *testing.T) {
	path := writeFile(t, "bad.yaml", "name: bad\nbogus: true\n")
	_, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_ConfigOverride(t *testing.T) {
	cfg := writeFile(t, "cutline.cue", "min_clip_duration_ms: 2000\n")
	path := writeFile(t, "split.yaml", `
name: short_split
scene:
  background:
    - { name: a, kind: video, duration: 3s }
steps:
  - { op: split, clip: a, at: 1s, expect_error: validation }
assertions:
  - { type: commits, labels: [] }
`)
	out, err := execute(t, "--config", cfg, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "step 1 split a: VALIDATION")
}

func TestRun_BadConfig(t *testing.T) {
	cfg := writeFile(t, "cutline.cue", "min_clip_duration_ms: -1\n")
	_, err := execute(t, "--config", cfg, "run", filepath.Join(scenarioDir, "split_background.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate(t *testing.T) {
	good := filepath.Join(scenarioDir, "rejections.yaml")
	bad := writeFile(t, "bad.yaml", "name: bad\nsteps:\n  - { op: fly }\n")
	cfg := writeFile(t, "ok.cue", "log_level: \"debug\"\n")

	out, err := execute(t, "validate", good, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "ok "+good)
	assert.Contains(t, out, "ok "+cfg)

	out, err = execute(t, "--format", "json", "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data []FileCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.Data[0].Valid)
	assert.Equal(t, "scenario", resp.Data[1].Kind)
	assert.False(t, resp.Data[1].Valid)
	assert.NotEmpty(t, resp.Data[1].Error)
}

func TestValidate_UnsupportedFile(t *testing.T) {
	_, err := execute(t, "validate", writeFile(t, "notes.txt", "hi"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJournalAndShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "run", "--db", db, filepath.Join(scenarioDir, "split_background.yaml"))
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "journal", "--db", db)
	require.NoError(t, err)

	var list struct {
		Data []JournalEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 4)
	labels := make([]string, 0, len(list.Data))
	for _, e := range list.Data {
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"split", "set trim", "reorder background", "mute"}, labels)

	out, err = execute(t, "journal", "--db", db, "--session", list.Data[0].Session)
	require.NoError(t, err)
	assert.Contains(t, out, "reorder background")

	out, err = execute(t, "--format", "json", "show", "--db", db, list.Data[3].ID)
	require.NoError(t, err)
	var shown struct {
		Data ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "mute", shown.Data.Label)
	assert.Equal(t, list.Data[3].Hash, shown.Data.Hash)
	assert.True(t, json.Valid(shown.Data.Snapshot))

	out, err = execute(t, "show", "--db", db, list.Data[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "label split")
}

func TestShow_MissingCommit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	_, err := execute(t, "run", "--db", db, filepath.Join(scenarioDir, "rejections.yaml"))
	require.NoError(t, err)

	out, err := execute(t, "show", "--db", db, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestJournal_MissingDatabase(t *testing.T) {
	_, err := execute(t, "journal", "--db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStyleTranscript_PreservesText(t *testing.T) {
	in := "scenario x\nstep 1 split a: ok\nstep 2 mute b: VALIDATION\nbackground\n  0 a video start=0s dur=1s trim=0s\nphase idle\n"
	styled := styleTranscript(in)
	for _, want := range []string{"scenario x", "step 1 split a: ", "VALIDATION", "  0 a video start=0s dur=1s trim=0s"} {
		assert.Contains(t, styled, want)
	}
}
