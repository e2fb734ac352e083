package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show store counters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, closeFn, err := openStore(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer closeFn()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read status", err)
			}

			out := newFormatter(cmd, rootOpts)
			if out.JSON() {
				return out.Success(stats)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "documents:  %d\n", stats.Documents)
			fmt.Fprintf(w, "snapshots:  %d\n", stats.Snapshots)
			fmt.Fprintf(w, "changelog:  %d entries (last seq %d, reserved %d)\n", stats.Entries, stats.LastSeq, stats.ReservedSeq)
			fmt.Fprintf(w, "cycles:     %d (%d active)\n", stats.Runs, stats.ActiveRuns)
			return nil
		},
	}
}
