package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/docsync/internal/model"
)

// Result is one element of a fetch: a parsed document or the reason it could
// not be produced. Stage tells a read failure from unparseable content.
type Result struct {
	Ref      Ref
	Document model.TrackedDocument
	Err      error
	Stage    model.FailureKind
}

// Options tunes a Fetcher.
type Options struct {
	// Concurrency bounds in-flight reads. Defaults to 8.
	Concurrency int
	// Rate limits reads per second; zero means unlimited.
	Rate float64
	// Burst is the rate limiter bucket size. Defaults to Concurrency.
	Burst  int
	Logger *slog.Logger
}

// Fetcher produces the per-cycle view of a Repository.
type Fetcher struct {
	repo        Repository
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewFetcher wraps repo with bounded concurrency and rate limiting.
func NewFetcher(repo Repository, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.Concurrency
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		repo:        repo,
		concurrency: opts.Concurrency,
		limiter:     rate.NewLimiter(limit, opts.Burst),
		logger:      opts.Logger,
	}
}

// Listing is the set of documents present in the corpus for one cycle.
type Listing struct {
	ctx     context.Context
	fetcher *Fetcher
	Refs    []Ref
}

// ListCurrent lists the corpus. Documents are not read until the listing is
// iterated. A listing error means the corpus state is unknown and is returned
// as is; per-document problems surface later as Results.
func (f *Fetcher) ListCurrent(ctx context.Context) (*Listing, error) {
	refs, err := f.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	slices.SortStableFunc(refs, func(a, b Ref) int { return model.CompareIDs(a.ID, b.ID) })
	deduped := refs[:0:0]
	for i, ref := range refs {
		if i > 0 && ref.ID == refs[i-1].ID {
			f.logger.Warn("duplicate document in listing, keeping first",
				"document", ref.ID, "kept", refs[i-1].Path, "skipped", ref.Path)
			continue
		}
		deduped = append(deduped, ref)
	}

	return &Listing{ctx: ctx, fetcher: f, Refs: deduped}, nil
}

// IDs returns the listing's key set.
func (l *Listing) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Refs))
	for _, ref := range l.Refs {
		ids[ref.ID] = struct{}{}
	}
	return ids
}

// Only returns a listing restricted to the given IDs. Unknown IDs are ignored.
func (l *Listing) Only(ids []string) *Listing {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var refs []Ref
	for _, ref := range l.Refs {
		if _, ok := want[ref.ID]; ok {
			refs = append(refs, ref)
		}
	}
	return &Listing{ctx: l.ctx, fetcher: l.fetcher, Refs: refs}
}

// All reads and parses every listed document in listing order. Reads run
// concurrently within a window; the sequence stops early if the consumer
// stops. Each call starts over, re-reading the repository.
func (l *Listing) All() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		window := l.fetcher.concurrency * 4
		for start := 0; start < len(l.Refs); start += window {
			end := min(start+window, len(l.Refs))
			for _, r := range l.fetcher.readWindow(l.ctx, l.Refs[start:end]) {
				if !yield(r) {
					return
				}
			}
		}
	}
}

func (f *Fetcher) readWindow(ctx context.Context, refs []Ref) []Result {
	results := make([]Result, len(refs))

	// Per-document errors are carried in results, so the group never fails
	// and one bad document cannot cancel its siblings.
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			results[i] = f.fetchOne(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, ref Ref) Result {
	if err := f.limiter.Wait(ctx); err != nil {
		return Result{Ref: ref, Err: fmt.Errorf("fetch %s: %w", ref.ID, err), Stage: model.FailureFetch}
	}

	raw, err := f.repo.Read(ctx, ref)
	if err != nil {
		f.logger.Debug("fetch failed", "document", ref.ID, "err", err)
		return Result{Ref: ref, Err: err, Stage: model.FailureFetch}
	}

	doc, err := Parse(raw)
	if err != nil {
		f.logger.Debug("parse failed", "document", ref.ID, "err", err)
		return Result{Ref: ref, Err: err, Stage: model.FailureDiff}
	}
	return Result{Ref: ref, Document: doc}
}
