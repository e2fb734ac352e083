package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/model"
)

func TestRuns_Empty(t *testing.T) {
	c := newCorpus(t)

	stdout, _, err := execute(t, c.args("runs")...)
	require.NoError(t, err)
	assert.Equal(t, "No cycles recorded.\n", stdout)
}

func TestRuns_ListAndShow(t *testing.T) {
	c := seed(t)
	c.write(t, 101, "\xff")
	_, _, err := execute(t, c.args("sync")...)
	require.Error(t, err)

	stdout, _, err := execute(t, c.args("runs")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "CYCLE")
	assert.Contains(t, stdout, "PROCESSED")
	assert.Contains(t, stdout, "partially_failed")
	assert.Contains(t, stdout, "succeeded")

	stdout, _, err = execute(t, c.args("runs", "--format", "json", "--limit", "1")...)
	require.NoError(t, err)
	var resp struct {
		Data struct {
			Cycles []model.CycleRun `json:"cycles"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Cycles, 1)
	latest := resp.Data.Cycles[0]
	assert.Equal(t, model.StatusPartiallyFailed, latest.Status)

	stdout, _, err = execute(t, c.args("runs", latest.ID)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "cycle "+latest.ID+" partially_failed")
	assert.Contains(t, stdout, "failed P-101 (diff)")
	assert.Contains(t, stdout, "started ")
	assert.Contains(t, stdout, "completed ")
}

func TestRuns_UnknownCycle(t *testing.T) {
	c := newCorpus(t)

	_, _, err := execute(t, c.args("runs", "no-such-cycle")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "cycle no-such-cycle not found")
}

func TestRuns_UnknownCycleJSON(t *testing.T) {
	c := newCorpus(t)

	stdout, _, err := execute(t, c.args("runs", "no-such-cycle", "--format", "json")...)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, map[string]any{"cycle_id": "no-such-cycle"}, resp.Error.Details)
}
