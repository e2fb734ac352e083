package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/model"
)

func TestChangelog_EmptyStore(t *testing.T) {
	c := newCorpus(t)

	stdout, _, err := execute(t, c.args("changelog")...)
	require.NoError(t, err)
	assert.Equal(t, "No entries.\n", stdout)
}

func TestChangelog_ListsInCommitOrder(t *testing.T) {
	c := seed(t)

	stdout, _, err := execute(t, c.args("changelog")...)
	require.NoError(t, err)

	first, second := strings.Index(stdout, "#1 "), strings.Index(stdout, "#2 ")
	require.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
	assert.Contains(t, stdout, "P-100 added")
	assert.Contains(t, stdout, "P-101 added")
}

func TestChangelog_After(t *testing.T) {
	c := seed(t)

	stdout, _, err := execute(t, c.args("changelog", "--after", "1")...)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "#1 ")
	assert.Contains(t, stdout, "#2 ")
}

func TestChangelog_NegativeLimit(t *testing.T) {
	c := newCorpus(t)

	_, _, err := execute(t, c.args("changelog", "--limit", "-1")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestChangelog_JSON(t *testing.T) {
	c := seed(t)

	stdout, _, err := execute(t, c.args("changelog", "--format", "json", "--limit", "1")...)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Entries []model.ChangelogEntry `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, int64(1), resp.Data.Entries[0].Seq)
}

func TestChangelog_ConsumerDeliversOnce(t *testing.T) {
	c := seed(t)

	stdout, _, err := execute(t, c.args("changelog", "--consumer", "mail")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "P-100 added")
	assert.Contains(t, stdout, "P-101 added")

	stdout, _, err = execute(t, c.args("changelog", "--consumer", "mail")...)
	require.NoError(t, err)
	assert.Empty(t, stdout, "cursor advanced past delivered entries")

	c.remove(t, 101)
	_, _, err = execute(t, c.args("sync")...)
	require.NoError(t, err)

	stdout, _, err = execute(t, c.args("changelog", "--consumer", "mail")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "P-101 removed")
	assert.NotContains(t, stdout, "P-100 added")
}

func TestChangelog_ConsumerJSON(t *testing.T) {
	c := seed(t)

	stdout, _, err := execute(t, c.args("changelog", "--consumer", "feed", "--format", "json")...)
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Consumer string                 `json:"consumer"`
			Entries  []model.ChangelogEntry `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "feed", resp.Data.Consumer)
	assert.Len(t, resp.Data.Entries, 2)

	stdout, _, err = execute(t, c.args("changelog", "--consumer", "feed", "--format", "json")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Empty(t, resp.Data.Entries)
}
