// Package notify delivers committed changelog entries to downstream
// consumers in commit order.
//
// Each consumer has a persisted cursor: the highest sequence number it has
// been handed. A Dispatcher reads entries after the cursor, passes them to its
// Notifier and advances the cursor only once delivery succeeded, so a crash or
// a failing notifier means redelivery, never loss.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/changelog"
	"github.com/roach88/docsync/internal/model"
)

// Notifier receives a batch of entries in commit order.
type Notifier interface {
	Notify(ctx context.Context, entries []model.ChangelogEntry) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, entries []model.ChangelogEntry) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, entries []model.ChangelogEntry) error {
	return f(ctx, entries)
}

// Feed is the committed changelog plus cursor storage.
// Implemented by *store.Store.
type Feed interface {
	ListChangelog(ctx context.Context, afterSeq int64, limit int) ([]model.ChangelogEntry, error)
	Cursor(ctx context.Context, consumer string) (int64, error)
	SaveCursor(ctx context.Context, consumer string, seq int64, at time.Time) error
}

const (
	DefaultConsumer  = "default"
	DefaultBatchSize = 100
)

// Options tunes a Dispatcher.
type Options struct {
	// Consumer names the cursor. Defaults to "default".
	Consumer string
	// BatchSize caps entries per Notify call. Defaults to 100.
	BatchSize int
	// SkipMetadata withholds metadata-only entries from the notifier. They
	// still advance the cursor.
	SkipMetadata bool
	Logger       *slog.Logger
	Now          func() time.Time
}

// Dispatcher moves one consumer's cursor through the changelog.
//
// Thread-safety: Dispatch calls are serialized.
type Dispatcher struct {
	feed         Feed
	notifier     Notifier
	consumer     string
	batch        int
	skipMetadata bool
	logger       *slog.Logger
	now          func() time.Time

	mu sync.Mutex
}

// NewDispatcher creates a Dispatcher delivering feed to n.
func NewDispatcher(feed Feed, n Notifier, opts Options) *Dispatcher {
	if opts.Consumer == "" {
		opts.Consumer = DefaultConsumer
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		feed:         feed,
		notifier:     n,
		consumer:     opts.Consumer,
		batch:        opts.BatchSize,
		skipMetadata: opts.SkipMetadata,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// Dispatch delivers every entry committed after the consumer's cursor and
// returns how many entries the notifier received. On a notifier error the
// cursor stays at the last fully delivered batch.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cursor, err := d.feed.Cursor(ctx, d.consumer)
	if err != nil {
		return 0, fmt.Errorf("dispatch: %w", err)
	}

	delivered := 0
	for {
		entries, err := d.feed.ListChangelog(ctx, cursor, d.batch)
		if err != nil {
			return delivered, fmt.Errorf("dispatch: %w", err)
		}
		if len(entries) == 0 {
			return delivered, nil
		}

		send := d.filter(entries)
		if len(send) > 0 {
			if err := d.notifier.Notify(ctx, send); err != nil {
				return delivered, fmt.Errorf("dispatch: notify after seq %d: %w", cursor, err)
			}
			delivered += len(send)
		}

		cursor = entries[len(entries)-1].Seq
		if err := d.feed.SaveCursor(ctx, d.consumer, cursor, d.now()); err != nil {
			return delivered, fmt.Errorf("dispatch: %w", err)
		}
		d.logger.Debug("changelog delivered",
			"consumer", d.consumer, "through_seq", cursor, "sent", len(send), "read", len(entries))

		if len(entries) < d.batch {
			return delivered, nil
		}
	}
}

// AfterCycle dispatches after a committed cycle. Its signature matches
// scheduler.Hook.
func (d *Dispatcher) AfterCycle(ctx context.Context, run *model.CycleRun) error {
	if run.EntriesCreated == 0 {
		return nil
	}
	n, err := d.Dispatch(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("notified", "consumer", d.consumer, "cycle_id", run.ID, "entries", n)
	return nil
}

func (d *Dispatcher) filter(entries []model.ChangelogEntry) []model.ChangelogEntry {
	if !d.skipMetadata {
		return entries
	}
	out := make([]model.ChangelogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Kind != model.KindMetadataModified {
			out = append(out, e)
		}
	}
	return out
}

// LogNotifier writes one structured log record per entry.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs entries at Info.
func (n LogNotifier) Notify(ctx context.Context, entries []model.ChangelogEntry) error {
	for _, e := range entries {
		n.Logger.InfoContext(ctx, "changelog entry",
			"seq", e.Seq,
			"document", e.DocumentID,
			"kind", e.Kind,
			"summary", e.Summary,
			"cycle_id", e.CycleID)
	}
	return nil
}

// WriterNotifier renders entries as text to W.
type WriterNotifier struct {
	W io.Writer
	// Diff includes diff bodies in the output.
	Diff bool

	mu sync.Mutex
}

// Notify renders entries followed by a blank line.
func (n *WriterNotifier) Notify(ctx context.Context, entries []model.ChangelogEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := changelog.Render(n.W, entries, changelog.RenderOptions{Diff: n.Diff}); err != nil {
		return fmt.Errorf("render changelog: %w", err)
	}
	if _, err := io.WriteString(n.W, "\n"); err != nil {
		return fmt.Errorf("render changelog: %w", err)
	}
	return nil
}
