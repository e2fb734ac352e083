package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/model"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh database file in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testDocument builds a fingerprinted document.
func testDocument(t *testing.T, id, title, body string, meta map[string]string) model.TrackedDocument {
	t.Helper()
	_, n, _ := model.ParseID(id)
	d := model.TrackedDocument{
		ID:           id,
		Number:       n,
		Title:        title,
		Metadata:     meta,
		Body:         body,
		LastModified: testTime,
		Path:         "rfd/" + id + "/README.md",
	}
	require.NoError(t, model.Fingerprint(&d))
	return d
}

// beginRun records a running cycle and returns it.
func beginRun(t *testing.T, s *Store, id string) model.CycleRun {
	t.Helper()
	run := model.CycleRun{ID: id, Trigger: model.TriggerManual, StartedAt: testTime}
	require.NoError(t, s.BeginCycle(context.Background(), run))
	return run
}

// entriesFor builds one entry per document starting at first.
func entriesFor(cycleID string, first int64, kind model.ChangeKind, ids ...string) []model.ChangelogEntry {
	entries := make([]model.ChangelogEntry, len(ids))
	for i, id := range ids {
		entries[i] = model.ChangelogEntry{
			Seq:         first + int64(i),
			DocumentID:  id,
			Kind:        kind,
			Summary:     id + " " + string(kind),
			CycleID:     cycleID,
			CommittedAt: testTime,
		}
	}
	return entries
}

// completed marks a run finished with the given status.
func completed(run model.CycleRun, status model.CycleStatus) model.CycleRun {
	done := testTime.Add(time.Minute)
	run.Status = status
	run.CompletedAt = &done
	return run
}
