package engine

import (
	"errors"
	"fmt"
)

// SyncError is an error raised while reconciling.
//
// Document-scoped codes (FETCH_ERROR, DIFF_ERROR) carry DocumentID and are
// recorded on the run without aborting the cycle. Cycle-scoped codes abort it.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// CycleID identifies the affected cycle, when one was started.
	CycleID string

	// DocumentID identifies the affected document for document-scoped codes.
	DocumentID string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeFetch means a document could not be read. Retried next cycle.
	ErrCodeFetch SyncErrorCode = "FETCH_ERROR"

	// ErrCodeDiff means a document was read but could not be compared,
	// usually malformed content. Retried next cycle like a fetch error.
	ErrCodeDiff SyncErrorCode = "DIFF_ERROR"

	// ErrCodeCommit means the cycle transaction failed and was rolled back.
	ErrCodeCommit SyncErrorCode = "COMMIT_ERROR"

	// ErrCodeList means the corpus could not be listed at all.
	ErrCodeList SyncErrorCode = "LIST_ERROR"

	// ErrCodeSchedulingConflict means a cycle was requested while another
	// was active. The request is rejected, not queued.
	ErrCodeSchedulingConflict SyncErrorCode = "SCHEDULING_CONFLICT"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	switch {
	case e.CycleID != "" && e.DocumentID != "":
		return fmt.Sprintf("%s: %s (cycle=%s, document=%s)", e.Code, msg, e.CycleID, e.DocumentID)
	case e.DocumentID != "":
		return fmt.Sprintf("%s: %s (document=%s)", e.Code, msg, e.DocumentID)
	case e.CycleID != "":
		return fmt.Sprintf("%s: %s (cycle=%s)", e.Code, msg, e.CycleID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSchedulingConflict reports that a cycle is already active.
func NewSchedulingConflict(activeState State) *SyncError {
	return &SyncError{
		Code:    ErrCodeSchedulingConflict,
		Message: fmt.Sprintf("a cycle is already active (state %s)", activeState),
	}
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsFetchError reports whether err is a document read failure.
func IsFetchError(err error) bool { return hasCode(err, ErrCodeFetch) }

// IsDiffError reports whether err is a document comparison failure.
func IsDiffError(err error) bool { return hasCode(err, ErrCodeDiff) }

// IsCommitError reports whether err is a rolled-back cycle commit.
func IsCommitError(err error) bool { return hasCode(err, ErrCodeCommit) }

// IsListError reports whether err is a corpus listing failure.
func IsListError(err error) bool { return hasCode(err, ErrCodeList) }

// IsSchedulingConflict reports whether err rejected a cycle because another
// was active.
func IsSchedulingConflict(err error) bool { return hasCode(err, ErrCodeSchedulingConflict) }
