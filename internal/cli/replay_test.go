package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docbridge/internal/store"
)

// partialWrite runs the category update with every Orders write failing,
// leaving three fan-out ops pending.
func partialWrite(t *testing.T, env *testEnv) {
	t.Helper()
	env.store.FailWrites("Orders", errors.New("node unavailable"))
	path := env.writeCommand(t, "update.yaml", updateCategory)
	_, err := env.run(NewExecCommand, path)
	require.Error(t, err)
}

func TestReplayEmptyJournal(t *testing.T) {
	env := newTestEnv(t, "text")

	out, err := env.run(NewReplayCommand)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay: 0 op(s) applied")
	assert.Contains(t, out, "Journal has no pending ops")
}

func TestReplayDryRun(t *testing.T) {
	env := newTestEnv(t, "text")
	partialWrite(t, env)
	opened := env.opened

	out, err := env.run(NewReplayCommand, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "3 pending op(s) in 1 batch(es)")
	assert.Contains(t, out, "fanout")
	assert.Contains(t, out, "Orders")
	assert.Equal(t, opened, env.opened, "a dry run never connects the store")
}

func TestReplayAppliesPending(t *testing.T) {
	env := newTestEnv(t, "json")
	partialWrite(t, env)
	env.store.FailWrites("Orders", nil)

	out, err := env.run(NewReplayCommand)
	require.NoError(t, err)

	var result ReplayResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 1, result.Batches)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Skipped)

	out, err = env.run(NewReplayCommand, "--dry-run")
	require.NoError(t, err)
	decodeData(t, out, &result)
	assert.Empty(t, result.Pending)
}

func TestReplayFailsAgain(t *testing.T) {
	env := newTestEnv(t, "text")
	partialWrite(t, env)

	out, err := env.run(NewReplayCommand)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Failed again:")
	assert.Contains(t, out, "Pending ops remain")
}

func TestReplayJournalFlag(t *testing.T) {
	env := newTestEnv(t, "json")
	other := filepath.Join(t.TempDir(), "other.db")

	j, err := store.Open(other)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := env.run(NewReplayCommand, "--journal", other, "--dry-run")
	require.NoError(t, err)

	var result ReplayResult
	decodeData(t, out, &result)
	assert.True(t, result.DryRun)
	assert.Equal(t, 0, result.Batches)
}

func TestReplayWithoutJournal(t *testing.T) {
	env := newTestEnv(t, "text")
	cfg, err := env.opts.Config()
	require.NoError(t, err)
	cfg.Journal.Path = ""

	_, err = env.run(NewReplayCommand)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal.path is not set")
}
