package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [cycle-id]",
		Short: "List recent cycle runs or show one",
		Long: `List recent cycle runs, newest first, or show one run with its
document failures.

Examples:
  docsync runs --limit 5
  docsync runs 0192f0c4-8d1e-7c3a-9b1f-3f2a6c1d4e5f`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showRun(opts, cmd, args[0])
			}
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list")

	return cmd
}

func listRuns(opts *RunsOptions, cmd *cobra.Command) error {
	st, _, closeFn, err := openStore(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := st.ListCycleRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	out := newFormatter(cmd, opts.RootOptions)
	if out.JSON() {
		return out.Success(map[string]any{"cycles": orEmpty(runs)})
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cycles recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tSTATUS\tTRIGGER\tSTARTED\tPROCESSED\tFAILED\tENTRIES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Status, r.Trigger, r.StartedAt.UTC().Format(time.RFC3339),
			r.Processed, r.Failed, r.EntriesCreated)
	}
	return tw.Flush()
}

func showRun(opts *RunsOptions, cmd *cobra.Command, id string) error {
	st, _, closeFn, err := openStore(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	out := newFormatter(cmd, opts.RootOptions)
	run, err := st.GetCycleRun(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		msg := fmt.Sprintf("cycle %s not found", id)
		if out.JSON() {
			_ = out.Error("NOT_FOUND", msg, map[string]string{"cycle_id": id})
		}
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load run", err)
	}

	if out.JSON() {
		return out.Success(run)
	}
	w := cmd.OutOrStdout()
	writeRunSummary(w, run, false)
	fmt.Fprintf(w, "  started %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "  completed %s\n", run.CompletedAt.UTC().Format(time.RFC3339))
	}
	return nil
}
