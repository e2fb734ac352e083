package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/model"
)

func TestListChangelog_CommitOrderAndPaging(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := beginRun(t, s, "cycle-1")
	require.NoError(t, s.CommitCycle(ctx, CommitBatch{
		Run:     completed(run, model.StatusSucceeded),
		Entries: entriesFor("cycle-1", 1, model.KindAdded, "P-3", "P-1", "P-2"),
	}))

	all, err := s.ListChangelog(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, "P-3", all[0].DocumentID, "commit order, not document order")

	page, err := s.ListChangelog(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].Seq)

	empty, err := s.ListChangelog(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestDocumentHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := beginRun(t, s, "cycle-1")
	entries := entriesFor("cycle-1", 1, model.KindAdded, "P-1", "P-2")
	require.NoError(t, s.CommitCycle(ctx, CommitBatch{Run: completed(run, model.StatusSucceeded), Entries: entries}))

	history, err := s.DocumentHistory(ctx, "P-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].Seq)
}

func TestListDocuments_ByNumber(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NotNil(t, docs)

	run := beginRun(t, s, "cycle-1")
	require.NoError(t, s.CommitCycle(ctx, CommitBatch{
		Run: completed(run, model.StatusSucceeded),
		Upserts: []model.TrackedDocument{
			testDocument(t, "P-100", "Hundred", "c\n", map[string]string{"state": "published"}),
			testDocument(t, "P-9", "Nine", "a\n", nil),
			testDocument(t, "P-20", "Twenty", "b\n", nil),
		},
		ObservedAt: testTime,
	}))

	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"P-9", "P-20", "P-100"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
	assert.Equal(t, "Hundred", docs[2].Title)
	assert.Equal(t, "published", docs[2].Metadata["state"])
	assert.Equal(t, "c\n", docs[2].Body)
}

func TestLoadBaselines(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc := testDocument(t, "P-100", "Hello", "hello\n", map[string]string{"state": "draft", "authors": "Ada"})
	run := beginRun(t, s, "cycle-1")
	require.NoError(t, s.CommitCycle(ctx, CommitBatch{
		Run:        completed(run, model.StatusSucceeded),
		Upserts:    []model.TrackedDocument{doc},
		ObservedAt: testTime,
	}))

	baselines, err := s.LoadBaselines(ctx)
	require.NoError(t, err)
	require.Contains(t, baselines, "P-100")

	b := baselines["P-100"]
	assert.Equal(t, doc.ContentHash, b.Snapshot.ContentHash)
	assert.Equal(t, "hello\n", b.Document.Body)
	assert.Equal(t, map[string]string{"state": "draft", "authors": "Ada"}, b.Document.Metadata)
	assert.True(t, testTime.Equal(b.Document.LastModified))
}

func TestGetSnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetSnapshot(context.Background(), "P-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCycleRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		run := model.CycleRun{ID: id, Trigger: model.TriggerScheduled, StartedAt: testTime.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.BeginCycle(ctx, run))
	}

	runs, err := s.ListCycleRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, model.StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].CompletedAt)
}

func TestGetCycleRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetCycleRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := beginRun(t, s, "cycle-1")
	require.NoError(t, s.CommitCycle(ctx, CommitBatch{
		Run:        completed(run, model.StatusSucceeded),
		Entries:    entriesFor("cycle-1", 1, model.KindAdded, "P-1"),
		Upserts:    []model.TrackedDocument{testDocument(t, "P-1", "One", "1\n", nil)},
		ObservedAt: testTime,
	}))
	beginRun(t, s, "cycle-2")

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, 1, st.Snapshots)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(1), st.LastSeq)
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.ActiveRuns)
}
