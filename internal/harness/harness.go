package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/source"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

// cycleSpacing separates the timestamps of consecutive cycles.
const cycleSpacing = time.Minute

// Harness drives one scenario against the real coordinator and store.
type Harness struct {
	store       *store.Store
	repo        *source.MemoryRepository
	coordinator *engine.Coordinator
	clock       *testutil.StepClock

	// failCommit is the injected commit failure for the running cycle.
	failCommit string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The clock is frozen
// within a cycle and moves forward one minute between cycles, and cycle IDs
// are cycle-0001, cycle-0002 and so on, so transcripts are reproducible.
//
// A non-nil error means the harness itself could not run; expectation and
// assertion failures are reported on the Result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		repo:  source.NewMemoryRepository(),
		clock: testutil.NewStepClock(testutil.Epoch, 0),
	}

	st, err := store.Open(":memory:", store.WithCommitHook(h.commitHook))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := source.NewFetcher(h.repo, source.Options{Concurrency: 2, Logger: logger})
	h.coordinator = engine.New(st, fetcher,
		engine.WithClock(h.clock),
		engine.WithIDGenerator(testutil.NewSequentialIDs("cycle")),
		engine.WithLogger(logger),
	)

	ctx := context.Background()
	result := NewResult()
	for i, c := range scenario.Cycles {
		run, err := h.executeCycle(ctx, c)
		if run == nil {
			return nil, fmt.Errorf("cycle %d: %w", i+1, err)
		}
		result.Runs = append(result.Runs, *run)
		for _, msg := range checkCycle(c.Expect, run, err) {
			result.AddError(fmt.Sprintf("%s: %s", cycleLabel(i, c), msg))
		}
	}

	result.Changelog, err = st.ListChangelog(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Runs: result.Runs}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) commitHook(context.Context, *sql.Tx) error {
	if h.failCommit != "" {
		return errors.New(h.failCommit)
	}
	return nil
}

// executeCycle applies the corpus change and runs one cycle.
func (h *Harness) executeCycle(ctx context.Context, c Cycle) (*model.CycleRun, error) {
	h.clock.Advance(cycleSpacing)
	h.applyCorpus(c.Corpus)
	h.failCommit = c.Run.FailCommit
	defer func() { h.failCommit = "" }()

	return h.coordinator.RunCycle(ctx, engine.RunOpts{
		Trigger: model.Trigger(c.Run.Trigger),
		Targets: c.Run.Targets,
		DryRun:  c.Run.DryRun,
	})
}

func (h *Harness) applyCorpus(change CorpusChange) {
	if change.ClearFailures {
		h.repo.ClearFailures()
	}
	for _, d := range change.Put {
		path := d.Path
		if path == "" {
			path = d.ID + ".md"
		}
		h.repo.Put(d.ID, path, d.Body, h.clock.Peek(), d.Author)
	}
	for _, id := range change.Delete {
		h.repo.Delete(id)
	}
	for id, msg := range change.FailRead {
		h.repo.FailRead(id, errors.New(msg))
	}
	if change.FailList != "" {
		h.repo.FailList(errors.New(change.FailList))
	}
}

func cycleLabel(i int, c Cycle) string {
	if c.Name != "" {
		return fmt.Sprintf("cycle %d (%s)", i+1, c.Name)
	}
	return fmt.Sprintf("cycle %d", i+1)
}

// checkCycle compares a run against its expectation.
func checkCycle(exp *CycleExpect, run *model.CycleRun, err error) []string {
	var msgs []string
	if exp == nil {
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("unexpected error: %v", err))
		}
		return msgs
	}

	if exp.Status != "" && string(run.Status) != exp.Status {
		msgs = append(msgs, fmt.Sprintf("status: expected %s, got %s", exp.Status, run.Status))
	}

	var code engine.SyncErrorCode
	var se *engine.SyncError
	if errors.As(err, &se) {
		code = se.Code
	}
	switch {
	case exp.ErrorCode == "" && err != nil:
		msgs = append(msgs, fmt.Sprintf("unexpected error: %v", err))
	case exp.ErrorCode != "" && string(code) != exp.ErrorCode:
		msgs = append(msgs, fmt.Sprintf("error code: expected %s, got %q", exp.ErrorCode, code))
	}

	if exp.Processed != nil && run.Processed != *exp.Processed {
		msgs = append(msgs, fmt.Sprintf("processed: expected %d, got %d", *exp.Processed, run.Processed))
	}
	if exp.Failed != nil && run.Failed != *exp.Failed {
		msgs = append(msgs, fmt.Sprintf("failed: expected %d, got %d", *exp.Failed, run.Failed))
	}

	if exp.NoEntries && len(run.Entries) > 0 {
		msgs = append(msgs, fmt.Sprintf("entries: expected none, got %s", describeEntries(run.Entries)))
	}
	if len(exp.Entries) > 0 {
		msgs = append(msgs, checkEntries(exp.Entries, run.Entries)...)
	}
	if len(exp.Failures) > 0 {
		msgs = append(msgs, checkFailures(exp.Failures, run.Failures)...)
	}
	return msgs
}

func checkEntries(want []EntryExpect, got []model.ChangelogEntry) []string {
	if len(want) != len(got) {
		return []string{fmt.Sprintf("entries: expected %d, got %s", len(want), describeEntries(got))}
	}
	var msgs []string
	for i, w := range want {
		g := got[i]
		if g.DocumentID != w.Document || string(g.Kind) != w.Kind {
			msgs = append(msgs, fmt.Sprintf("entries[%d]: expected %s %s, got %s %s", i, w.Document, w.Kind, g.DocumentID, g.Kind))
			continue
		}
		if w.Seq != 0 && g.Seq != w.Seq {
			msgs = append(msgs, fmt.Sprintf("entries[%d]: expected seq %d, got %d", i, w.Seq, g.Seq))
		}
		if w.Summary != "" && g.Summary != w.Summary {
			msgs = append(msgs, fmt.Sprintf("entries[%d]: expected summary %q, got %q", i, w.Summary, g.Summary))
		}
		if w.Diff != "" && g.DiffBody != w.Diff {
			msgs = append(msgs, fmt.Sprintf("entries[%d]: expected diff %q, got %q", i, w.Diff, g.DiffBody))
		}
	}
	return msgs
}

func checkFailures(want []FailureExpect, got []model.DocumentFailure) []string {
	have := make([]string, len(got))
	for i, f := range got {
		have[i] = f.DocumentID + " " + string(f.Kind)
	}
	expect := make([]string, len(want))
	for i, f := range want {
		expect[i] = f.Document + " " + f.Kind
	}
	slices.Sort(have)
	slices.Sort(expect)
	if !slices.Equal(have, expect) {
		return []string{fmt.Sprintf("failures: expected %v, got %v", expect, have)}
	}
	return nil
}

func describeEntries(entries []model.ChangelogEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.DocumentID + " " + string(e.Kind)
	}
	return fmt.Sprintf("%d %v", len(entries), parts)
}
