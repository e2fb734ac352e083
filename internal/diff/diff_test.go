package diff

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/model"
)

func doc(t *testing.T, id, title, body string, meta map[string]string) model.TrackedDocument {
	t.Helper()
	d := model.TrackedDocument{ID: id, Title: title, Body: body, Metadata: meta}
	require.NoError(t, model.Fingerprint(&d))
	return d
}

func baseline(d model.TrackedDocument) *model.Baseline {
	return &model.Baseline{
		Snapshot: model.Snapshot{
			DocumentID:   d.ID,
			ContentHash:  d.ContentHash,
			MetadataHash: d.MetadataHash,
			ObservedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Document: d,
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestDiffAdded(t *testing.T) {
	cur := doc(t, "P-1", "One", "body\n", nil)

	d, err := Diff(cur, nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindAdded, d.Kind)
	assert.Equal(t, cur.ContentHash, d.NewHash)
	assert.Empty(t, d.PreviousHash)
	assert.Empty(t, d.DiffBody)
	require.NotNil(t, d.Current)
	assert.Nil(t, d.Previous)
}

func TestDiffContentModified(t *testing.T) {
	prev := doc(t, "P-100", "Hundred", "line one\nline two\nline three\n", nil)
	cur := doc(t, "P-100", "Hundred", "line one\nline 2\nline three\n", nil)

	d, err := Diff(cur, baseline(prev))
	require.NoError(t, err)

	assert.Equal(t, model.KindContentModified, d.Kind)
	assert.Equal(t, prev.ContentHash, d.PreviousHash)
	assert.Equal(t, cur.ContentHash, d.NewHash)
	assert.Empty(t, d.MetadataChanges)
	assert.Equal(t, Stats{Added: 1, Removed: 1}, BodyStats(d))

	newGoldie(t).Assert(t, "one_line_changed", []byte(d.DiffBody))
}

func TestDiffMissingFinalNewline(t *testing.T) {
	prev := doc(t, "P-1", "One", "a\nb\n", nil)
	cur := doc(t, "P-1", "One", "a\nb", nil)

	d, err := Diff(cur, baseline(prev))
	require.NoError(t, err)
	require.Equal(t, model.KindContentModified, d.Kind)
	require.NotEmpty(t, d.DiffBody)

	newGoldie(t).Assert(t, "missing_final_newline", []byte(d.DiffBody))
}

func TestDiffDeterministic(t *testing.T) {
	prev := doc(t, "P-5", "Five", "alpha\nbeta\ngamma\ndelta\nepsilon\nzeta\neta\ntheta\n", nil)
	cur := doc(t, "P-5", "Five", "alpha\nBETA\ngamma\ndelta\nepsilon\nzeta\neta\ntheta\niota\n", nil)

	first, err := Diff(cur, baseline(prev))
	require.NoError(t, err)
	for range 10 {
		again, err := Diff(cur, baseline(prev))
		require.NoError(t, err)
		assert.Equal(t, first.DiffBody, again.DiffBody)
	}
	assert.Equal(t, Stats{Added: 2, Removed: 1}, BodyStats(first))
	assert.Contains(t, first.DiffBody, "@@ -1,8 +1,9 @@")
}

func TestDiffContentAndMetadata(t *testing.T) {
	prev := doc(t, "P-2", "Two", "old\n", map[string]string{"state": "draft"})
	cur := doc(t, "P-2", "Two", "new\n", map[string]string{"state": "published"})

	d, err := Diff(cur, baseline(prev))
	require.NoError(t, err)
	assert.Equal(t, model.KindContentModified, d.Kind, "content changes take precedence")
	assert.Equal(t, []model.FieldChange{{Field: "state", Old: "draft", New: "published"}}, d.MetadataChanges)
}

func TestDiffMetadataModified(t *testing.T) {
	prev := doc(t, "P-3", "Three", "same\n", map[string]string{"state": "discussion", "labels": "api"})
	cur := doc(t, "P-3", "Three!", "same\n", map[string]string{"state": "published", "authors": "Ada"})

	d, err := Diff(cur, baseline(prev))
	require.NoError(t, err)

	assert.Equal(t, model.KindMetadataModified, d.Kind)
	assert.Empty(t, d.DiffBody)
	assert.Equal(t, []model.FieldChange{
		{Field: "authors", Old: "", New: "Ada"},
		{Field: "labels", Old: "api", New: ""},
		{Field: "state", Old: "discussion", New: "published"},
		{Field: "title", Old: "Three", New: "Three!"},
	}, d.MetadataChanges)
}

func TestDiffUnchanged(t *testing.T) {
	cur := doc(t, "P-4", "Four", "same\n", map[string]string{"state": "published"})

	d, err := Diff(cur, baseline(cur))
	require.NoError(t, err)
	assert.Equal(t, model.KindUnchanged, d.Kind)
	assert.Empty(t, d.DiffBody)
}

func TestDiffEqualContentHashNeverContentModified(t *testing.T) {
	prev := doc(t, "P-4", "Four", "same\n", map[string]string{"state": "draft"})
	cur := doc(t, "P-4", "Four", "same\n", map[string]string{"state": "published"})

	d, err := Diff(cur, baseline(prev))
	require.NoError(t, err)
	assert.NotEqual(t, model.KindContentModified, d.Kind)
}

func TestDiffRejectsInvalidDocuments(t *testing.T) {
	_, err := Diff(model.TrackedDocument{}, nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	tampered := doc(t, "P-6", "Six", "body\n", nil)
	tampered.Body = "other\n"
	_, err = Diff(tampered, nil)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.ErrorContains(t, err, "content hash does not match body")
}

func TestDiffRejectsInconsistentBaseline(t *testing.T) {
	cur := doc(t, "P-7", "Seven", "body\n", nil)
	b := baseline(cur)
	b.Snapshot.ContentHash = "stale"

	_, err := Diff(cur, b)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestRemoved(t *testing.T) {
	baselines := map[string]model.Baseline{
		"P-100": *baseline(doc(t, "P-100", "Hundred", "x\n", nil)),
		"P-101": *baseline(doc(t, "P-101", "Gone", "y\n", nil)),
		"P-102": *baseline(doc(t, "P-102", "Flaky", "z\n", nil)),
		"P-99":  *baseline(doc(t, "P-99", "Also gone", "w\n", nil)),
	}
	listed := map[string]struct{}{"P-100": {}}
	excluded := map[string]struct{}{"P-102": {}}

	removed := Removed(baselines, listed, excluded)
	require.Len(t, removed, 2)
	assert.Equal(t, "P-99", removed[0].DocumentID)
	assert.Equal(t, "P-101", removed[1].DocumentID)
	assert.Equal(t, model.KindRemoved, removed[1].Kind)
	assert.Equal(t, baselines["P-101"].Snapshot.ContentHash, removed[1].PreviousHash)
	require.NotNil(t, removed[1].Previous)
	assert.Equal(t, "Gone", removed[1].Previous.Title)
}

func TestRemovedNothingMissing(t *testing.T) {
	baselines := map[string]model.Baseline{"P-1": *baseline(doc(t, "P-1", "One", "x\n", nil))}
	assert.Empty(t, Removed(baselines, map[string]struct{}{"P-1": {}}, nil))
}
