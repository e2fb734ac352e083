package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/docsync/internal/model"
)

// CommitBatch is everything one cycle persists. CommitCycle applies it in a
// single transaction.
type CommitBatch struct {
	// Run carries the final status and counters; its row must already exist
	// (see BeginCycle).
	Run model.CycleRun

	// Entries must carry contiguous sequence numbers from ReserveSequence.
	Entries []model.ChangelogEntry

	// Upserts are added or changed documents; each also replaces its snapshot.
	Upserts []model.TrackedDocument

	// Removals are document IDs whose document row and snapshot are dropped.
	Removals []string

	// ObservedAt stamps the replaced snapshots.
	ObservedAt time.Time
}

// InterruptedError is the error recorded on a run that was still running
// when a later cycle began: its process died before finishing it.
const InterruptedError = "interrupted: cycle did not complete"

// BeginCycle records a cycle run in the running state. Any run still marked
// running is closed as failed with InterruptedError in the same transaction,
// so a crash never leaves an orphaned active run behind.
func (s *Store) BeginCycle(ctx context.Context, run model.CycleRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE cycle_runs SET status = ?, completed_at = ?, error = ?
		WHERE status = ?
	`, string(model.StatusFailed), formatTime(run.StartedAt), InterruptedError, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("begin cycle: close interrupted runs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycle_runs (id, trigger_kind, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, string(run.Trigger), string(model.StatusRunning), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("begin cycle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("begin cycle: %w", err)
	}
	return nil
}

// ReserveSequence allocates a contiguous block of n changelog sequence numbers
// and returns the first. The reservation commits on its own: a block whose
// cycle later rolls back is burned, never handed out again.
func (s *Store) ReserveSequence(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve sequence: block size must be positive, got %d", n)
	}

	var last int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE sequence_counter SET value = value + ?
		WHERE name = 'changelog'
		RETURNING value
	`, n).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence: %w", err)
	}
	return last - int64(n) + 1, nil
}

// CommitCycle writes a cycle's changelog entries, document and snapshot
// changes, document failures and run summary in one transaction. Either all
// of it becomes visible or none of it does.
func (s *Store) CommitCycle(ctx context.Context, batch CommitBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit cycle: begin: %w", err)
	}
	defer tx.Rollback()

	if err := checkSequence(ctx, tx, batch.Entries); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}

	for _, e := range batch.Entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			return fmt.Errorf("commit cycle: %w", err)
		}
	}

	for _, d := range batch.Upserts {
		if err := upsertDocument(ctx, tx, d, batch.Run.ID); err != nil {
			return fmt.Errorf("commit cycle: %w", err)
		}
		snap := model.Snapshot{
			DocumentID:   d.ID,
			ContentHash:  d.ContentHash,
			MetadataHash: d.MetadataHash,
			ObservedAt:   batch.ObservedAt,
			CycleID:      batch.Run.ID,
		}
		if err := upsertSnapshot(ctx, tx, snap); err != nil {
			return fmt.Errorf("commit cycle: %w", err)
		}
	}

	for _, id := range batch.Removals {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE document_id = ?`, id); err != nil {
			return fmt.Errorf("commit cycle: delete snapshot %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("commit cycle: delete document %s: %w", id, err)
		}
	}

	if err := finishRun(ctx, tx, batch.Run); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx, tx); err != nil {
			return fmt.Errorf("commit cycle: hook: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

// MarkCycleFailed records a terminal failure for a run whose commit did not
// happen. Document failures collected before the failure are kept.
func (s *Store) MarkCycleFailed(ctx context.Context, run model.CycleRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark cycle failed: begin: %w", err)
	}
	defer tx.Rollback()

	run.Status = model.StatusFailed
	run.EntriesCreated = 0
	run.FirstSeq, run.LastSeq = 0, 0
	if err := finishRun(ctx, tx, run); err != nil {
		return fmt.Errorf("mark cycle failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark cycle failed: %w", err)
	}
	return nil
}

// SaveCursor records the last delivered sequence number for a consumer.
// Cursors only move forward.
func (s *Store) SaveCursor(ctx context.Context, consumer string, seq int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_cursors (consumer, last_seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(consumer) DO UPDATE SET
			last_seq = excluded.last_seq,
			updated_at = excluded.updated_at
		WHERE excluded.last_seq > delivery_cursors.last_seq
	`, consumer, seq, formatTime(at))
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// checkSequence rejects entries that are not contiguous or that would not
// sort after everything already committed.
func checkSequence(ctx context.Context, tx *sql.Tx, entries []model.ChangelogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			return fmt.Errorf("sequence gap between %d and %d", entries[i-1].Seq, entries[i].Seq)
		}
	}

	var maxSeq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changelog`).Scan(&maxSeq); err != nil {
		return fmt.Errorf("read max sequence: %w", err)
	}
	if entries[0].Seq <= maxSeq {
		return fmt.Errorf("sequence %d is not above committed maximum %d", entries[0].Seq, maxSeq)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e model.ChangelogEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO changelog
		(seq, document_id, kind, summary, diff_body, author, previous_hash, new_hash, cycle_id, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.DocumentID,
		string(e.Kind),
		e.Summary,
		e.DiffBody,
		e.Author,
		e.PreviousHash,
		e.NewHash,
		e.CycleID,
		formatTime(e.CommittedAt),
	)
	if err != nil {
		return fmt.Errorf("insert entry %d: %w", e.Seq, err)
	}
	return nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, d model.TrackedDocument, cycleID string) error {
	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents
		(id, number, title, metadata, body, content_hash, metadata_hash, last_modified, author, path, updated_cycle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			title = excluded.title,
			metadata = excluded.metadata,
			body = excluded.body,
			content_hash = excluded.content_hash,
			metadata_hash = excluded.metadata_hash,
			last_modified = excluded.last_modified,
			author = excluded.author,
			path = excluded.path,
			updated_cycle = excluded.updated_cycle
	`,
		d.ID,
		d.Number,
		d.Title,
		meta,
		d.Body,
		d.ContentHash,
		d.MetadataHash,
		formatTime(d.LastModified),
		d.Author,
		d.Path,
		cycleID,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.ID, err)
	}
	return nil
}

func upsertSnapshot(ctx context.Context, tx *sql.Tx, snap model.Snapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (document_id, content_hash, metadata_hash, observed_at, cycle_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			metadata_hash = excluded.metadata_hash,
			observed_at = excluded.observed_at,
			cycle_id = excluded.cycle_id
	`, snap.DocumentID, snap.ContentHash, snap.MetadataHash, formatTime(snap.ObservedAt), snap.CycleID)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.DocumentID, err)
	}
	return nil
}

// finishRun writes the terminal state of a run and its document failures.
func finishRun(ctx context.Context, tx *sql.Tx, run model.CycleRun) error {
	var completedAt string
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE cycle_runs SET
			status = ?,
			completed_at = ?,
			processed = ?,
			failed = ?,
			entries_created = ?,
			first_seq = ?,
			last_seq = ?,
			error = ?
		WHERE id = ?
	`,
		string(run.Status),
		completedAt,
		run.Processed,
		run.Failed,
		run.EntriesCreated,
		run.FirstSeq,
		run.LastSeq,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if n != 1 {
		return fmt.Errorf("update run %s: %w", run.ID, ErrNotFound)
	}

	for _, f := range run.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cycle_failures (cycle_id, document_id, kind, cause)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(cycle_id, document_id) DO NOTHING
		`, run.ID, f.DocumentID, string(f.Kind), f.Cause)
		if err != nil {
			return fmt.Errorf("record failure %s: %w", f.DocumentID, err)
		}
	}
	return nil
}
