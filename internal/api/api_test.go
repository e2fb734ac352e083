package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/scheduler"
	"github.com/roach88/docsync/internal/source"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

type stack struct {
	store *store.Store
	repo  *source.MemoryRepository
	guard *scheduler.Guard
	srv   *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "docsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	repo := source.NewMemoryRepository()
	repo.Put("P-1", "", "# One\n\nfirst\n", testutil.Epoch, "")
	repo.Put("P-2", "", "# Two\n\nsecond\n", testutil.Epoch, "")

	coord := engine.New(st, source.NewFetcher(repo, source.Options{}),
		engine.WithClock(testutil.NewStepClock(testutil.Epoch, time.Second)),
		engine.WithIDGenerator(testutil.NewSequentialIDs("cycle")))
	guard := &scheduler.Guard{}
	sched := scheduler.New(coord, guard, scheduler.Config{})

	srv := httptest.NewServer(NewServer(sched, st, nil).Routes())
	t.Cleanup(srv.Close)
	return &stack{store: st, repo: repo, guard: guard, srv: srv}
}

func (s *stack) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestPing(t *testing.T) {
	s := newStack(t)
	resp, err := http.Get(s.srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body [8]byte
	n, _ := resp.Body.Read(body[:])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body[:n]))
}

func TestRunSync_CommitsAndReportsRun(t *testing.T) {
	s := newStack(t)

	var run model.CycleRun
	code := s.do(t, http.MethodPost, "/run/sync", &run)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cycle-0001", run.ID)
	assert.Equal(t, model.StatusSucceeded, run.Status)
	assert.Equal(t, model.TriggerManual, run.Trigger)
	assert.Equal(t, 2, run.EntriesCreated)

	var got model.CycleRun
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/cycles/cycle-0001", &got))
	assert.Equal(t, model.StatusSucceeded, got.Status)
}

func TestRunSync_DryRun(t *testing.T) {
	s := newStack(t)

	var run model.CycleRun
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync?dry_run=true", &run))
	assert.Len(t, run.Entries, 2)

	var stats store.Stats
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/status", &stats))
	assert.Equal(t, 0, stats.Entries)
}

func TestRunSync_ConflictWhileActive(t *testing.T) {
	s := newStack(t)
	release, ok := s.guard.TryAcquire()
	require.True(t, ok)
	defer release()

	var body errorBody
	code := s.do(t, http.MethodPost, "/run/sync", &body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SCHEDULING_CONFLICT", body.Error.Code)
}

func TestRunSync_FailedCycleIs500WithRun(t *testing.T) {
	s := newStack(t)
	s.repo.FailList(errors.New("repository unavailable"))

	var run model.CycleRun
	code := s.do(t, http.MethodPost, "/run/sync", &run)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "repository unavailable")
}

func TestRunSync_PartialFailureListsFailures(t *testing.T) {
	s := newStack(t)
	s.repo.FailRead("P-2", errors.New("timeout"))

	var run model.CycleRun
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", &run))
	assert.Equal(t, model.StatusPartiallyFailed, run.Status)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "P-2", run.Failures[0].DocumentID)
}

func TestDocumentSync(t *testing.T) {
	s := newStack(t)

	var run model.CycleRun
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/documents/P-2/sync", &run))
	assert.Equal(t, model.TriggerDocument, run.Trigger)
	require.Len(t, run.Entries, 1)
	assert.Equal(t, "P-2", run.Entries[0].DocumentID)

	var bad errorBody
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/documents/not-an-id/sync", &bad))
}

func TestChangelogPaging(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))
	s.repo.Put("P-3", "", "# Three\n", testutil.Epoch, "")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))

	var page struct {
		Entries   []model.ChangelogEntry `json:"entries"`
		NextAfter int64                  `json:"next_after"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/changelog?limit=2", &page))
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(2), page.NextAfter)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/changelog?after=2", &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "P-3", page.Entries[0].DocumentID)
	assert.Equal(t, int64(3), page.Entries[0].Seq)

	var bad errorBody
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/changelog?after=-1", &bad))
}

func TestCycles(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))

	var list struct {
		Cycles []model.CycleRun `json:"cycles"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/cycles", &list))
	require.Len(t, list.Cycles, 2)
	assert.Equal(t, "cycle-0002", list.Cycles[0].ID, "newest first")

	var missing errorBody
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/cycles/nope", &missing))
	assert.Equal(t, "NOT_FOUND", missing.Error.Code)
}

func TestStatus(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))

	var stats store.Stats
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/status", &stats))
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Snapshots)
	assert.Equal(t, int64(2), stats.LastSeq)
	assert.Equal(t, 1, stats.Runs)
}

var _ Triggerer = (*scheduler.Scheduler)(nil)

func TestDocuments(t *testing.T) {
	s := newStack(t)

	var empty struct {
		Documents []model.TrackedDocument `json:"documents"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/documents", &empty))
	assert.Empty(t, empty.Documents)

	s.repo.Put("P-10", "", "# Ten\n", testutil.Epoch, "")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))

	var list struct {
		Documents []model.TrackedDocument `json:"documents"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/documents", &list))
	require.Len(t, list.Documents, 3)
	assert.Equal(t, []string{"P-1", "P-2", "P-10"},
		[]string{list.Documents[0].ID, list.Documents[1].ID, list.Documents[2].ID})
	assert.Equal(t, "Ten", list.Documents[2].Title)
	assert.NotEmpty(t, list.Documents[2].ContentHash)
	assert.Empty(t, list.Documents[2].Body)
}

type triggerFunc func(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error)

func (f triggerFunc) Trigger(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error) {
	return f(ctx, opts)
}

func TestRunSync_ClientDisconnectDoesNotCancelCycle(t *testing.T) {
	var cycleErr error
	trigger := triggerFunc(func(ctx context.Context, opts engine.RunOpts) (*model.CycleRun, error) {
		cycleErr = ctx.Err()
		return &model.CycleRun{ID: "cycle-1", Trigger: opts.Trigger, Status: model.StatusSucceeded}, nil
	})
	handler := NewServer(trigger, nil, nil).Routes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/run/sync", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, cycleErr, "cycle context outlives the request")
}

func TestDocumentChangelog(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))
	s.repo.Put("P-2", "", "# Two\n\nsecond, revised\n", testutil.Epoch, "")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/run/sync", nil))

	var history struct {
		Document string                 `json:"document"`
		Entries  []model.ChangelogEntry `json:"entries"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/documents/P-2/changelog", &history))
	assert.Equal(t, "P-2", history.Document)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, model.KindAdded, history.Entries[0].Kind)
	assert.Equal(t, model.KindContentModified, history.Entries[1].Kind)
	assert.Less(t, history.Entries[0].Seq, history.Entries[1].Seq)

	var bad errorBody
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/documents/nope/changelog", &bad))
}
