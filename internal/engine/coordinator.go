package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/docsync/internal/changelog"
	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/source"
	"github.com/roach88/docsync/internal/store"
)

const (
	// DefaultCommitTimeout bounds the sequence reservation and commit.
	DefaultCommitTimeout = time.Minute

	// markFailedTimeout bounds recording a failed run after the cycle
	// context is gone.
	markFailedTimeout = 10 * time.Second

	tracerName = "github.com/roach88/docsync/internal/engine"
)

// CanonicalStore is the persistence the coordinator needs.
// Implemented by *store.Store.
type CanonicalStore interface {
	BeginCycle(ctx context.Context, run model.CycleRun) error
	LoadBaselines(ctx context.Context) (map[string]model.Baseline, error)
	ReserveSequence(ctx context.Context, n int) (int64, error)
	CommitCycle(ctx context.Context, batch store.CommitBatch) error
	MarkCycleFailed(ctx context.Context, run model.CycleRun) error
}

// RunOpts selects what a cycle does.
type RunOpts struct {
	// Trigger is recorded on the run. Defaults to manual, or document when
	// Targets is set.
	Trigger model.Trigger

	// Targets restricts the cycle to these document IDs. Removal detection
	// then only considers targets missing from the listing.
	Targets []string

	// DryRun diffs and builds entries without reserving sequence numbers or
	// writing anything. Returned entries carry Seq 0.
	DryRun bool
}

// Coordinator runs reconciliation cycles against one store and one corpus.
//
// Thread-safety: RunCycle may be called from any goroutine; a call made
// while another cycle is active fails with a SCHEDULING_CONFLICT error.
type Coordinator struct {
	store         CanonicalStore
	fetcher       *source.Fetcher
	clock         Clock
	ids           CycleIDGenerator
	logger        *slog.Logger
	tracer        trace.Tracer
	commitTimeout time.Duration
	machine       machine
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for run and snapshot timestamps.
func WithClock(c Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithIDGenerator sets the cycle ID generator.
func WithIDGenerator(g CycleIDGenerator) Option {
	return func(co *Coordinator) { co.ids = g }
}

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) { co.logger = l }
}

// WithTracer sets the tracer for cycle and phase spans. Defaults to the
// global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(co *Coordinator) { co.tracer = t }
}

// WithCommitTimeout bounds sequence reservation plus commit.
func WithCommitTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.commitTimeout = d }
}

// WithStateObserver registers a callback for state transitions.
func WithStateObserver(fn StateObserver) Option {
	return func(co *Coordinator) { co.machine.observer = fn }
}

// New creates a Coordinator.
func New(st CanonicalStore, fetcher *source.Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         st,
		fetcher:       fetcher,
		clock:         SystemClock{},
		ids:           UUIDv7Generator{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        otel.Tracer(tracerName),
		commitTimeout: DefaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Coordinator) State() State {
	return c.machine.current()
}

// plan is what the fetch and diff phases hand to the commit phase.
type plan struct {
	descs    []model.ChangeDescriptor
	upserts  []model.TrackedDocument
	removals []string
}

// RunCycle runs one reconciliation cycle and returns its run summary.
//
// Document-level failures do not produce an error: they are listed on the
// returned run, whose status is then partially_failed. A non-nil error means
// the cycle as a whole failed (status failed) or never started (nil run,
// SCHEDULING_CONFLICT).
func (c *Coordinator) RunCycle(ctx context.Context, opts RunOpts) (*model.CycleRun, error) {
	if !c.machine.start() {
		return nil, NewSchedulingConflict(c.machine.current())
	}
	defer c.machine.move(StateIdle)

	if opts.Trigger == "" {
		opts.Trigger = model.TriggerManual
		if len(opts.Targets) > 0 {
			opts.Trigger = model.TriggerDocument
		}
	}

	run := &model.CycleRun{
		ID:        c.ids.Generate(),
		Trigger:   opts.Trigger,
		Status:    model.StatusRunning,
		StartedAt: c.clock.Now(),
	}
	logger := c.logger.With("cycle_id", run.ID)

	ctx, span := c.tracer.Start(ctx, "docsync.cycle", trace.WithAttributes(
		attribute.String("docsync.cycle_id", run.ID),
		attribute.String("docsync.trigger", string(run.Trigger)),
		attribute.Bool("docsync.dry_run", opts.DryRun),
		attribute.Int("docsync.targets", len(opts.Targets)),
	))
	defer span.End()

	logger.Info("cycle started", "trigger", run.Trigger, "targets", opts.Targets, "dry_run", opts.DryRun)

	if !opts.DryRun {
		if err := c.store.BeginCycle(ctx, *run); err != nil {
			se := &SyncError{Code: ErrCodeCommit, Message: "record cycle start", CycleID: run.ID, Err: err}
			return c.fail(ctx, span, logger, run, se, false)
		}
	}

	p, err := c.collect(ctx, logger, run, opts.Targets)
	if err != nil {
		var se *SyncError
		if !errors.As(err, &se) {
			se = &SyncError{Code: ErrCodeCommit, CycleID: run.ID, Err: err}
		}
		return c.fail(ctx, span, logger, run, se, !opts.DryRun)
	}

	if opts.DryRun {
		return c.preview(ctx, span, logger, run, p)
	}

	c.machine.move(StateCommitting)
	if err := c.commit(ctx, run, p); err != nil {
		return c.fail(ctx, span, logger, run, err, true)
	}

	span.SetAttributes(
		attribute.String("docsync.status", string(run.Status)),
		attribute.Int("docsync.processed", run.Processed),
		attribute.Int("docsync.failed", run.Failed),
		attribute.Int("docsync.entries", run.EntriesCreated),
	)
	if run.Failed > 0 {
		c.machine.move(StatePartiallyFailed)
		span.SetStatus(codes.Error, fmt.Sprintf("%d document(s) failed", run.Failed))
		logger.Warn("cycle partially failed",
			"processed", run.Processed, "failed", run.Failed, "entries", run.EntriesCreated)
	} else {
		logger.Info("cycle committed",
			"processed", run.Processed, "entries", run.EntriesCreated,
			"first_seq", run.FirstSeq, "last_seq", run.LastSeq)
	}
	return run, nil
}

// collect runs the Fetching and Diffing phases. Document failures are
// appended to run; only cycle-level problems return an error.
func (c *Coordinator) collect(ctx context.Context, logger *slog.Logger, run *model.CycleRun, targets []string) (plan, error) {
	fetchCtx, fetchSpan := c.tracer.Start(ctx, "docsync.fetch")
	defer fetchSpan.End()

	baselines, err := c.store.LoadBaselines(fetchCtx)
	if err != nil {
		return plan{}, &SyncError{Code: ErrCodeCommit, Message: "load baselines", CycleID: run.ID, Err: err}
	}

	listing, err := c.fetcher.ListCurrent(fetchCtx)
	if err != nil {
		fetchSpan.RecordError(err)
		return plan{}, &SyncError{Code: ErrCodeList, CycleID: run.ID, Err: err}
	}
	listed := listing.IDs()

	scope := baselines
	if len(targets) > 0 {
		listing = listing.Only(targets)
		scope = make(map[string]model.Baseline, len(targets))
		for _, id := range targets {
			if b, ok := baselines[id]; ok {
				scope[id] = b
			}
		}
	}

	failed := make(map[string]struct{})
	var fetched []model.TrackedDocument
	for r := range listing.All() {
		if r.Err != nil {
			c.recordFailure(logger, run, r.Ref.ID, r.Stage, r.Err)
			failed[r.Ref.ID] = struct{}{}
			continue
		}
		fetched = append(fetched, r.Document)
	}
	fetchSpan.SetAttributes(
		attribute.Int("docsync.listed", len(listing.Refs)),
		attribute.Int("docsync.fetched", len(fetched)),
	)
	fetchSpan.End()

	c.machine.move(StateDiffing)
	_, diffSpan := c.tracer.Start(ctx, "docsync.diff")
	defer diffSpan.End()

	var p plan
	for _, doc := range fetched {
		var prev *model.Baseline
		if b, ok := baselines[doc.ID]; ok {
			prev = &b
		}
		desc, err := diff.Diff(doc, prev)
		if err != nil {
			c.recordFailure(logger, run, doc.ID, model.FailureDiff, err)
			continue
		}
		p.descs = append(p.descs, desc)
		if desc.Kind != model.KindUnchanged {
			p.upserts = append(p.upserts, doc)
		}
	}

	for _, desc := range diff.Removed(scope, listed, failed) {
		p.descs = append(p.descs, desc)
		p.removals = append(p.removals, desc.DocumentID)
	}

	run.Processed = len(listing.Refs) + len(p.removals)
	run.Failed = len(run.Failures)
	diffSpan.SetAttributes(
		attribute.Int("docsync.changes", changelog.Pending(p.descs)),
		attribute.Int("docsync.removed", len(p.removals)),
	)
	return p, nil
}

func (c *Coordinator) recordFailure(logger *slog.Logger, run *model.CycleRun, documentID string, kind model.FailureKind, cause error) {
	code := ErrCodeFetch
	if kind == model.FailureDiff {
		code = ErrCodeDiff
	}
	se := &SyncError{Code: code, CycleID: run.ID, DocumentID: documentID, Err: cause}
	logger.Warn("document failed", "document", documentID, "kind", kind, "err", se)
	run.Failures = append(run.Failures, model.DocumentFailure{
		CycleID:    run.ID,
		DocumentID: documentID,
		Kind:       kind,
		Cause:      cause.Error(),
	})
}

// commit reserves sequence numbers, builds entries and writes the cycle.
func (c *Coordinator) commit(ctx context.Context, run *model.CycleRun, p plan) *SyncError {
	commitCtx, cancel := c.commitContext(ctx)
	defer cancel()
	commitCtx, span := c.tracer.Start(commitCtx, "docsync.commit")
	defer span.End()

	now := c.clock.Now()
	var entries []model.ChangelogEntry
	if n := changelog.Pending(p.descs); n > 0 {
		first, err := c.store.ReserveSequence(commitCtx, n)
		if err != nil {
			return &SyncError{Code: ErrCodeCommit, Message: "reserve sequence", CycleID: run.ID, Err: err}
		}
		entries, err = changelog.Build(run.ID, first, now, p.descs)
		if err != nil {
			return &SyncError{Code: ErrCodeCommit, Message: "build changelog", CycleID: run.ID, Err: err}
		}
		run.FirstSeq = entries[0].Seq
		run.LastSeq = entries[len(entries)-1].Seq
	}

	run.Status = model.StatusSucceeded
	if run.Failed > 0 {
		run.Status = model.StatusPartiallyFailed
	}
	run.CompletedAt = &now
	run.EntriesCreated = len(entries)
	run.Entries = entries

	err := c.store.CommitCycle(commitCtx, store.CommitBatch{
		Run:        *run,
		Entries:    entries,
		Upserts:    p.upserts,
		Removals:   p.removals,
		ObservedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		return &SyncError{Code: ErrCodeCommit, CycleID: run.ID, Err: err}
	}
	span.SetAttributes(attribute.Int("docsync.entries", len(entries)))
	return nil
}

// commitContext derives the commit deadline. A cycle whose deadline expired
// while fetching still gets to commit what it fetched; an explicitly
// cancelled cycle does not.
func (c *Coordinator) commitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	}
	return context.WithTimeout(ctx, c.commitTimeout)
}

// preview finishes a dry run.
func (c *Coordinator) preview(ctx context.Context, span trace.Span, logger *slog.Logger, run *model.CycleRun, p plan) (*model.CycleRun, error) {
	now := c.clock.Now()
	if changelog.Pending(p.descs) > 0 {
		entries, err := changelog.Build(run.ID, 1, now, p.descs)
		if err != nil {
			se := &SyncError{Code: ErrCodeDiff, Message: "build changelog", CycleID: run.ID, Err: err}
			return c.fail(ctx, span, logger, run, se, false)
		}
		for i := range entries {
			entries[i].Seq = 0
		}
		run.Entries = entries
	}
	run.Status = model.StatusSucceeded
	if run.Failed > 0 {
		run.Status = model.StatusPartiallyFailed
	}
	run.CompletedAt = &now
	run.EntriesCreated = len(run.Entries)

	span.SetAttributes(attribute.Int("docsync.entries", run.EntriesCreated))
	logger.Info("dry run complete", "processed", run.Processed, "failed", run.Failed, "entries", run.EntriesCreated)
	return run, nil
}

// fail finalizes a run that could not commit. The failure is written with a
// context detached from the cycle, which may already be past its deadline.
func (c *Coordinator) fail(ctx context.Context, span trace.Span, logger *slog.Logger, run *model.CycleRun, cause *SyncError, persist bool) (*model.CycleRun, error) {
	now := c.clock.Now()
	run.Status = model.StatusFailed
	run.CompletedAt = &now
	run.Error = cause.Error()
	run.EntriesCreated = 0
	run.FirstSeq, run.LastSeq = 0, 0
	run.Entries = nil
	run.Failed = len(run.Failures)

	if persist {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
		defer cancel()
		if err := c.store.MarkCycleFailed(markCtx, *run); err != nil {
			logger.Error("record failed cycle", "err", err)
		}
	}

	span.RecordError(cause)
	span.SetStatus(codes.Error, string(cause.Code))
	logger.Error("cycle failed", "code", cause.Code, "err", cause)
	return run, cause
}
