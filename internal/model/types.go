package model

import (
	"time"
)

// ChangeKind classifies how a document differs from its snapshot.
type ChangeKind string

const (
	KindAdded            ChangeKind = "added"
	KindRemoved          ChangeKind = "removed"
	KindContentModified  ChangeKind = "content_modified"
	KindMetadataModified ChangeKind = "metadata_modified"
	KindUnchanged        ChangeKind = "unchanged"
)

// Valid reports whether k is one of the known kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case KindAdded, KindRemoved, KindContentModified, KindMetadataModified, KindUnchanged:
		return true
	}
	return false
}

// TrackedDocument is the canonical record of one proposal document.
type TrackedDocument struct {
	ID           string            `json:"id"`
	Number       int               `json:"number"`
	Title        string            `json:"title"`
	Metadata     map[string]string `json:"metadata"`
	Body         string            `json:"body"`
	ContentHash  string            `json:"content_hash"`
	MetadataHash string            `json:"metadata_hash"`
	LastModified time.Time         `json:"last_modified"`
	Author       string            `json:"author,omitempty"`
	Path         string            `json:"path,omitempty"`
}

// State returns the document's lifecycle state, if the source declares one.
func (d TrackedDocument) State() string {
	return d.Metadata["state"]
}

// Snapshot is the last-observed fingerprint of a document.
type Snapshot struct {
	DocumentID   string    `json:"document_id"`
	ContentHash  string    `json:"content_hash"`
	MetadataHash string    `json:"metadata_hash"`
	ObservedAt   time.Time `json:"observed_at"`
	CycleID      string    `json:"cycle_id"`
}

// Baseline pairs a snapshot with the document committed alongside it.
// The document carries the previous body for diffing.
type Baseline struct {
	Snapshot Snapshot
	Document TrackedDocument
}

// FieldChange is one metadata field that differs between two observations.
// An empty Old means the field was added; an empty New means it was dropped.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeDescriptor describes how one document changed during a cycle.
// It is never persisted directly.
type ChangeDescriptor struct {
	DocumentID      string
	Kind            ChangeKind
	PreviousHash    string
	NewHash         string
	DiffBody        string
	MetadataChanges []FieldChange
	Current         *TrackedDocument
	Previous        *TrackedDocument
}

// ChangelogEntry is one committed, immutable audit record.
type ChangelogEntry struct {
	Seq          int64      `json:"seq"`
	DocumentID   string     `json:"document_id"`
	Kind         ChangeKind `json:"kind"`
	Summary      string     `json:"summary"`
	DiffBody     string     `json:"diff_body,omitempty"`
	Author       string     `json:"author,omitempty"`
	PreviousHash string     `json:"previous_hash,omitempty"`
	NewHash      string     `json:"new_hash,omitempty"`
	CycleID      string     `json:"cycle_id"`
	CommittedAt  time.Time  `json:"committed_at"`
}

// Trigger records what started a cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerDocument  Trigger = "document"
	TriggerWatch     Trigger = "watch"
)

// CycleStatus is the outcome of a cycle run.
type CycleStatus string

const (
	StatusRunning         CycleStatus = "running"
	StatusSucceeded       CycleStatus = "succeeded"
	StatusPartiallyFailed CycleStatus = "partially_failed"
	StatusFailed          CycleStatus = "failed"
)

// FailureKind distinguishes read failures from content that could not be compared.
type FailureKind string

const (
	FailureFetch FailureKind = "fetch"
	FailureDiff  FailureKind = "diff"
)

// DocumentFailure is a document-level error recorded against a cycle.
type DocumentFailure struct {
	CycleID    string      `json:"cycle_id"`
	DocumentID string      `json:"document_id"`
	Kind       FailureKind `json:"kind"`
	Cause      string      `json:"cause"`
}

// CycleRun summarizes one reconciliation cycle.
type CycleRun struct {
	ID             string            `json:"id"`
	Trigger        Trigger           `json:"trigger"`
	Status         CycleStatus       `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Processed      int               `json:"processed"`
	Failed         int               `json:"failed"`
	EntriesCreated int               `json:"entries_created"`
	FirstSeq       int64             `json:"first_seq,omitempty"`
	LastSeq        int64             `json:"last_seq,omitempty"`
	Error          string            `json:"error,omitempty"`
	Failures       []DocumentFailure `json:"failures,omitempty"`

	// Entries holds the entries built by this cycle. It is populated by the
	// coordinator (including dry runs) and not persisted on the run row.
	Entries []ChangelogEntry `json:"entries,omitempty"`
}

// Succeeded counts documents processed without a document-level failure.
func (r CycleRun) Succeeded() int {
	return r.Processed - r.Failed
}

// Done reports whether the run reached a terminal status.
func (r CycleRun) Done() bool {
	return r.Status != StatusRunning && r.Status != ""
}
