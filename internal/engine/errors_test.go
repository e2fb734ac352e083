package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncError_Format(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  *SyncError
		want string
	}{
		{
			name: "document scoped",
			err:  &SyncError{Code: ErrCodeFetch, CycleID: "c1", DocumentID: "P-7", Err: cause},
			want: "FETCH_ERROR: connection reset (cycle=c1, document=P-7)",
		},
		{
			name: "cycle scoped with message",
			err:  &SyncError{Code: ErrCodeCommit, Message: "reserve sequence", CycleID: "c1", Err: cause},
			want: "COMMIT_ERROR: reserve sequence: connection reset (cycle=c1)",
		},
		{
			name: "bare",
			err:  NewSchedulingConflict(StateCommitting),
			want: "SCHEDULING_CONFLICT: a cycle is already active (state committing)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSyncError_HelpersSeeThroughWrapping(t *testing.T) {
	cause := errors.New("disk I/O error")
	wrapped := fmt.Errorf("sync: %w", &SyncError{Code: ErrCodeCommit, Err: cause})

	assert.True(t, IsCommitError(wrapped))
	assert.False(t, IsFetchError(wrapped))
	assert.False(t, IsSchedulingConflict(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	assert.True(t, IsFetchError(&SyncError{Code: ErrCodeFetch}))
	assert.True(t, IsDiffError(&SyncError{Code: ErrCodeDiff}))
	assert.True(t, IsListError(&SyncError{Code: ErrCodeList}))
	assert.True(t, IsSchedulingConflict(NewSchedulingConflict(StateFetching)))
	assert.False(t, IsCommitError(cause))
	assert.False(t, IsCommitError(nil))
}
