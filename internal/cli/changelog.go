package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/changelog"
	"github.com/roach88/docsync/internal/model"
	"github.com/roach88/docsync/internal/notify"
)

// ChangelogOptions holds flags for the changelog command.
type ChangelogOptions struct {
	*RootOptions
	After    int64
	Limit    int
	Diff     bool
	Consumer string
}

// NewChangelogCommand creates the changelog command.
func NewChangelogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangelogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Print committed changelog entries in commit order",
		Long: `Print committed changelog entries in commit order.

With --consumer, print only the entries that consumer has not seen yet and
advance its cursor, so repeated invocations never print an entry twice.

Examples:
  docsync changelog --after 120 --limit 20
  docsync changelog --diff
  docsync changelog --consumer mail`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangelog(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a sequence number above this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum entries to print (0 for all)")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "include diff bodies in text output")
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "deliver new entries to this named cursor and advance it")

	return cmd
}

func runChangelog(opts *ChangelogOptions, cmd *cobra.Command) error {
	if opts.After < 0 || opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--after and --limit must not be negative")
	}

	st, logger, closeFn, err := openStore(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()

	if opts.Consumer != "" {
		var delivered []model.ChangelogEntry
		var n notify.Notifier = &notify.WriterNotifier{W: cmd.OutOrStdout(), Diff: opts.Diff}
		if out.JSON() {
			n = notify.NotifierFunc(func(_ context.Context, entries []model.ChangelogEntry) error {
				delivered = append(delivered, entries...)
				return nil
			})
		}
		d := notify.NewDispatcher(st, n, notify.Options{
			Consumer:     opts.Consumer,
			SkipMetadata: opts.Config.NotifySkipMetadata,
			Logger:       logger,
		})
		count, err := d.Dispatch(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to deliver changelog", err)
		}
		out.VerboseLog("delivered %d entries to %s", count, opts.Consumer)
		if out.JSON() {
			return out.Success(map[string]any{"consumer": opts.Consumer, "entries": orEmpty(delivered)})
		}
		return nil
	}

	entries, err := st.ListChangelog(ctx, opts.After, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read changelog", err)
	}
	if out.JSON() {
		return out.Success(map[string]any{"entries": orEmpty(entries)})
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
		return nil
	}
	return changelog.Render(cmd.OutOrStdout(), entries, changelog.RenderOptions{Diff: opts.Diff})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
