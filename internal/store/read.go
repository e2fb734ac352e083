package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const documentColumns = `id, number, title, metadata, body, content_hash, metadata_hash, last_modified, author, path`

// GetSnapshot returns the live snapshot for a document.
// Returns ErrNotFound if the document has never been committed.
func (s *Store) GetSnapshot(ctx context.Context, documentID string) (model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, content_hash, metadata_hash, observed_at, cycle_id
		FROM snapshots
		WHERE document_id = ?
	`, documentID)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("snapshot %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns every live snapshot ordered by document ID.
func (s *Store) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, content_hash, metadata_hash, observed_at, cycle_id
		FROM snapshots
		ORDER BY document_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []model.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// LoadBaselines returns every live snapshot keyed by document ID, each paired
// with the document committed alongside it.
func (s *Store) LoadBaselines(ctx context.Context) (map[string]model.Baseline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.document_id, s.content_hash, s.metadata_hash, s.observed_at, s.cycle_id,
		       d.id, d.number, d.title, d.metadata, d.body, d.content_hash, d.metadata_hash,
		       d.last_modified, d.author, d.path
		FROM snapshots s
		JOIN documents d ON d.id = s.document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	baselines := make(map[string]model.Baseline)
	for rows.Next() {
		var (
			b                         model.Baseline
			observedAt, meta, lastMod string
		)
		err := rows.Scan(
			&b.Snapshot.DocumentID, &b.Snapshot.ContentHash, &b.Snapshot.MetadataHash, &observedAt, &b.Snapshot.CycleID,
			&b.Document.ID, &b.Document.Number, &b.Document.Title, &meta, &b.Document.Body,
			&b.Document.ContentHash, &b.Document.MetadataHash, &lastMod, &b.Document.Author, &b.Document.Path,
		)
		if err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		if b.Snapshot.ObservedAt, err = parseTime(observedAt); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		if err := decodeDocument(&b.Document, meta, lastMod); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		baselines[b.Snapshot.DocumentID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate baselines: %w", err)
	}
	return baselines, nil
}

// GetDocument returns the canonical record for a document.
// Returns ErrNotFound if no such document is tracked.
func (s *Store) GetDocument(ctx context.Context, id string) (model.TrackedDocument, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackedDocument{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TrackedDocument{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every tracked document ordered by number, then ID.
func (s *Store) ListDocuments(ctx context.Context) ([]model.TrackedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		ORDER BY number ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []model.TrackedDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// ListChangelog returns committed entries with seq > afterSeq in commit order.
// A limit <= 0 returns everything.
func (s *Store) ListChangelog(ctx context.Context, afterSeq int64, limit int) ([]model.ChangelogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, document_id, kind, summary, diff_body, author, previous_hash, new_hash, cycle_id, committed_at
		FROM changelog
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	return collectEntries(rows)
}

// DocumentHistory returns every committed entry for one document in commit order.
func (s *Store) DocumentHistory(ctx context.Context, documentID string) ([]model.ChangelogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, document_id, kind, summary, diff_body, author, previous_hash, new_hash, cycle_id, committed_at
		FROM changelog
		WHERE document_id = ?
		ORDER BY seq ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectEntries(rows)
}

// GetCycleRun returns a run and its document failures.
// Returns ErrNotFound if no run has that ID.
func (s *Store) GetCycleRun(ctx context.Context, id string) (model.CycleRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger_kind, status, started_at, completed_at, processed, failed,
		       entries_created, first_seq, last_seq, error
		FROM cycle_runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CycleRun{}, fmt.Errorf("cycle run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.CycleRun{}, fmt.Errorf("get cycle run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, document_id, kind, cause
		FROM cycle_failures
		WHERE cycle_id = ?
		ORDER BY document_id COLLATE BINARY ASC
	`, id)
	if err != nil {
		return model.CycleRun{}, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.DocumentFailure
		var kind string
		if err := rows.Scan(&f.CycleID, &f.DocumentID, &kind, &f.Cause); err != nil {
			return model.CycleRun{}, fmt.Errorf("scan failure: %w", err)
		}
		f.Kind = model.FailureKind(kind)
		run.Failures = append(run.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return model.CycleRun{}, fmt.Errorf("iterate failures: %w", err)
	}
	return run, nil
}

// ListCycleRuns returns the most recent runs, newest first.
func (s *Store) ListCycleRuns(ctx context.Context, limit int) ([]model.CycleRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, status, started_at, completed_at, processed, failed,
		       entries_created, first_seq, last_seq, error
		FROM cycle_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle runs: %w", err)
	}
	defer rows.Close()

	runs := []model.CycleRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle runs: %w", err)
	}
	return runs, nil
}

// Cursor returns the last delivered sequence number for a consumer, or 0.
func (s *Store) Cursor(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT last_seq FROM delivery_cursors WHERE consumer = ?`, consumer).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return seq, nil
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Documents   int   `json:"documents"`
	Snapshots   int   `json:"snapshots"`
	Entries     int   `json:"entries"`
	LastSeq     int64 `json:"last_seq"`
	ReservedSeq int64 `json:"reserved_seq"`
	Runs        int   `json:"runs"`
	ActiveRuns  int   `json:"active_runs"`
}

// Stats counts documents, snapshots, entries and runs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM snapshots),
			(SELECT COUNT(*) FROM changelog),
			(SELECT COALESCE(MAX(seq), 0) FROM changelog),
			(SELECT value FROM sequence_counter WHERE name = 'changelog'),
			(SELECT COUNT(*) FROM cycle_runs),
			(SELECT COUNT(*) FROM cycle_runs WHERE status = 'running')
	`).Scan(&st.Documents, &st.Snapshots, &st.Entries, &st.LastSeq, &st.ReservedSeq, &st.Runs, &st.ActiveRuns)
	if err != nil {
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}
	return st, nil
}

func scanSnapshot(row rowScanner) (model.Snapshot, error) {
	var snap model.Snapshot
	var observedAt string
	if err := row.Scan(&snap.DocumentID, &snap.ContentHash, &snap.MetadataHash, &observedAt, &snap.CycleID); err != nil {
		return model.Snapshot{}, err
	}
	t, err := parseTime(observedAt)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.ObservedAt = t
	return snap, nil
}

func scanDocument(row rowScanner) (model.TrackedDocument, error) {
	var d model.TrackedDocument
	var meta, lastMod string
	err := row.Scan(&d.ID, &d.Number, &d.Title, &meta, &d.Body, &d.ContentHash, &d.MetadataHash,
		&lastMod, &d.Author, &d.Path)
	if err != nil {
		return model.TrackedDocument{}, err
	}
	if err := decodeDocument(&d, meta, lastMod); err != nil {
		return model.TrackedDocument{}, err
	}
	return d, nil
}

func decodeDocument(d *model.TrackedDocument, meta, lastMod string) error {
	m, err := unmarshalMetadata(meta)
	if err != nil {
		return err
	}
	d.Metadata = m
	t, err := parseTime(lastMod)
	if err != nil {
		return err
	}
	d.LastModified = t
	return nil
}

func collectEntries(rows *sql.Rows) ([]model.ChangelogEntry, error) {
	defer rows.Close()

	entries := []model.ChangelogEntry{}
	for rows.Next() {
		var e model.ChangelogEntry
		var kind, committedAt string
		err := rows.Scan(&e.Seq, &e.DocumentID, &kind, &e.Summary, &e.DiffBody, &e.Author,
			&e.PreviousHash, &e.NewHash, &e.CycleID, &committedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = model.ChangeKind(kind)
		if e.CommittedAt, err = parseTime(committedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanRun(row rowScanner) (model.CycleRun, error) {
	var (
		run                            model.CycleRun
		trigger, status, started, done string
	)
	err := row.Scan(&run.ID, &trigger, &status, &started, &done, &run.Processed, &run.Failed,
		&run.EntriesCreated, &run.FirstSeq, &run.LastSeq, &run.Error)
	if err != nil {
		return model.CycleRun{}, err
	}
	run.Trigger = model.Trigger(trigger)
	run.Status = model.CycleStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return model.CycleRun{}, err
	}
	if done != "" {
		t, err := parseTime(done)
		if err != nil {
			return model.CycleRun{}, err
		}
		run.CompletedAt = &t
	}
	return run, nil
}
