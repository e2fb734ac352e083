package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/changelog"
	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/model"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Documents []string
	DryRun    bool
	Diff      bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle now",
		Long: `Run one reconciliation cycle against the configured corpus and print
the run summary followed by the changelog entries it committed.

Exit codes:
  0 - Cycle succeeded
  1 - Cycle failed or some documents failed
  2 - Command error (bad configuration, database cannot be opened)

Examples:
  docsync sync --source ./rfd --db ./docsync.db
  docsync sync --document RFD-42 --diff
  docsync sync --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Documents, "document", nil, "restrict the cycle to this document ID (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "diff and preview entries without writing anything")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "include diff bodies in text output")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	for _, id := range opts.Documents {
		if _, _, ok := model.ParseID(id); !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid document ID %q", id))
		}
	}

	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := newFormatter(cmd, opts.RootOptions)
	run, err := a.scheduler.Trigger(cmd.Context(), engine.RunOpts{
		Targets: opts.Documents,
		DryRun:  opts.DryRun,
	})
	if run == nil {
		if err == nil {
			err = errors.New("no run returned")
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if out.JSON() {
		switch {
		case err != nil:
			_ = out.Failure(run, errorCode(err), err.Error())
		case run.Status == model.StatusPartiallyFailed:
			_ = out.Failure(run, "PARTIALLY_FAILED", fmt.Sprintf("%d document(s) failed", run.Failed))
		default:
			if err := out.Success(run); err != nil {
				return err
			}
		}
	} else {
		w := cmd.OutOrStdout()
		writeRunSummary(w, *run, opts.DryRun)
		if len(run.Entries) > 0 {
			fmt.Fprintln(w)
			if err := changelog.Render(w, run.Entries, changelog.RenderOptions{Diff: opts.Diff}); err != nil {
				return err
			}
		}
	}

	switch {
	case err != nil:
		return WrapExitError(ExitFailure, "cycle failed", err)
	case run.Status == model.StatusPartiallyFailed:
		return NewExitError(ExitFailure, fmt.Sprintf("cycle %s partially failed: %d document(s) failed", run.ID, run.Failed))
	}
	return nil
}

// errorCode is the SyncError code of err, or SYNC_FAILED.
func errorCode(err error) string {
	var se *engine.SyncError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "SYNC_FAILED"
}

// writeRunSummary prints a run header, its counters and any failures.
func writeRunSummary(w io.Writer, run model.CycleRun, dryRun bool) {
	header := fmt.Sprintf("cycle %s %s (trigger %s)", run.ID, run.Status, run.Trigger)
	if dryRun {
		header += " [dry run]"
	}
	fmt.Fprintln(w, header)

	counts := fmt.Sprintf("  processed %d, failed %d, entries %d", run.Processed, run.Failed, run.EntriesCreated)
	if run.FirstSeq > 0 {
		counts += fmt.Sprintf(" (seq %d..%d)", run.FirstSeq, run.LastSeq)
	}
	fmt.Fprintln(w, counts)

	for _, f := range run.Failures {
		fmt.Fprintf(w, "  failed %s (%s): %s\n", f.DocumentID, f.Kind, f.Cause)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
}
