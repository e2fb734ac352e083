package changelog

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/model"
)

var committedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func doc(t *testing.T, id, title, body string, meta map[string]string) model.TrackedDocument {
	t.Helper()
	d := model.TrackedDocument{ID: id, Title: title, Body: body, Metadata: meta}
	require.NoError(t, model.Fingerprint(&d))
	return d
}

func baseline(d model.TrackedDocument) *model.Baseline {
	return &model.Baseline{
		Snapshot: model.Snapshot{DocumentID: d.ID, ContentHash: d.ContentHash, MetadataHash: d.MetadataHash},
		Document: d,
	}
}

// cycleDescriptors covers one document of each kind, deliberately out of order.
func cycleDescriptors(t *testing.T) []model.ChangeDescriptor {
	t.Helper()

	added := doc(t, "P-100", "Hello", "hi\n", map[string]string{"state": "published", "authors": "Ada"})
	addedDesc, err := diff.Diff(added, nil)
	require.NoError(t, err)

	prev := doc(t, "P-101", "World", "old\n", nil)
	cur := doc(t, "P-101", "World", "new\n", nil)
	modDesc, err := diff.Diff(cur, baseline(prev))
	require.NoError(t, err)

	same := doc(t, "P-50", "Same", "same\n", nil)
	sameDesc, err := diff.Diff(same, baseline(same))
	require.NoError(t, err)

	gone := doc(t, "P-102", "Gone", "bye\n", nil)
	removed := diff.Removed(map[string]model.Baseline{"P-102": *baseline(gone)}, nil, nil)

	return []model.ChangeDescriptor{removed[0], modDesc, sameDesc, addedDesc}
}

func TestPending(t *testing.T) {
	assert.Equal(t, 3, Pending(cycleDescriptors(t)))
	assert.Zero(t, Pending(nil))
}

func TestBuildOrdersAndNumbers(t *testing.T) {
	entries, err := Build("cycle-1", 7, committedAt, cycleDescriptors(t))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "P-100", entries[0].DocumentID)
	assert.Equal(t, "P-101", entries[1].DocumentID)
	assert.Equal(t, "P-102", entries[2].DocumentID)
	for i, e := range entries {
		assert.Equal(t, int64(7+i), e.Seq)
		assert.Equal(t, "cycle-1", e.CycleID)
		assert.True(t, committedAt.Equal(e.CommittedAt))
	}

	assert.Equal(t, model.KindAdded, entries[0].Kind)
	assert.Equal(t, "Ada", entries[0].Author, "falls back to declared authors")
	assert.NotEmpty(t, entries[1].DiffBody)
	assert.Equal(t, model.KindRemoved, entries[2].Kind)
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build("c", 1, committedAt, cycleDescriptors(t))
	require.NoError(t, err)
	b, err := Build("c", 1, committedAt, cycleDescriptors(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildOnlyUnchanged(t *testing.T) {
	entries, err := Build("c", 0, committedAt, []model.ChangeDescriptor{{DocumentID: "P-1", Kind: model.KindUnchanged}})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildRejects(t *testing.T) {
	_, err := Build("c", 0, committedAt, []model.ChangeDescriptor{{DocumentID: "P-1", Kind: model.KindAdded}})
	assert.ErrorContains(t, err, "invalid first sequence")

	_, err = Build("c", 1, committedAt, []model.ChangeDescriptor{{DocumentID: "P-1", Kind: "renamed"}})
	assert.ErrorContains(t, err, "unknown change kind")

	dup := []model.ChangeDescriptor{
		{DocumentID: "P-1", Kind: model.KindAdded},
		{DocumentID: "P-1", Kind: model.KindRemoved},
	}
	_, err = Build("c", 1, committedAt, dup)
	assert.ErrorContains(t, err, "duplicate descriptor for P-1")
}

func TestSummarize(t *testing.T) {
	prev := doc(t, "P-3", "Three", "same\n", map[string]string{"state": "discussion"})
	cur := doc(t, "P-3", "Three", "same\n", map[string]string{"state": "published", "labels": "api"})
	d, err := diff.Diff(cur, baseline(prev))
	require.NoError(t, err)

	assert.Equal(t,
		`P-3 "Three" metadata updated: labels: (none) -> api, state: discussion -> published`,
		Summarize(d))

	prev = doc(t, "P-4", "Four", "a\n", map[string]string{"state": "draft"})
	cur = doc(t, "P-4", "Four", "b\nc\n", map[string]string{"state": "published"})
	d, err = diff.Diff(cur, baseline(prev))
	require.NoError(t, err)

	assert.Equal(t, `P-4 "Four" content updated (+2 -1); state: draft -> published`, Summarize(d))
}

func TestSummarizeUntitled(t *testing.T) {
	d := model.ChangeDescriptor{DocumentID: "P-9", Kind: model.KindAdded, Current: &model.TrackedDocument{ID: "P-9", Title: "P-9"}}
	assert.Equal(t, "P-9 added", Summarize(d))
}

func TestRenderGolden(t *testing.T) {
	entries, err := Build("cycle-1", 1, committedAt, cycleDescriptors(t))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rendered_cycle", []byte(RenderText(entries, RenderOptions{Diff: true})))
}

func TestRenderWithoutDiff(t *testing.T) {
	entries, err := Build("cycle-1", 1, committedAt, cycleDescriptors(t))
	require.NoError(t, err)

	out := RenderText(entries, RenderOptions{})
	assert.NotContains(t, out, "+++")
	assert.Contains(t, out, "#2 2026-03-01 12:00:00Z P-101 content_modified\n")
}
