package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/docsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is read from DOCSYNC_* variables before a command runs, then
	// overridden by any of the flags below that were set explicitly.
	Config config.Config

	DBPath     string
	SourceKind string
	SourceRoot string
	SourceDir  string
	GitRef     string
	Prefix     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - proposal corpus reconciliation",
		Long: `Reconcile a corpus of numbered proposal documents against the last
committed snapshot and record every change in an append-only changelog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.loadConfig(cmd.Flags())
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.DBPath, "db", "", "path to SQLite database (default $DOCSYNC_DB_PATH or docsync.db)")
	pf.StringVar(&opts.SourceKind, "source-kind", "", "corpus source: dir or git (default $DOCSYNC_SOURCE_KIND or dir)")
	pf.StringVar(&opts.SourceRoot, "source", "", "corpus directory or git repository (default $DOCSYNC_SOURCE_ROOT or .)")
	pf.StringVar(&opts.SourceDir, "source-dir", "", "corpus directory inside the git repository")
	pf.StringVar(&opts.GitRef, "git-ref", "", "git revision to read (default $DOCSYNC_GIT_REF or HEAD)")
	pf.StringVar(&opts.Prefix, "prefix", "", "document ID prefix (default $DOCSYNC_ID_PREFIX or RFD)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewChangelogCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig parses the environment and applies explicitly set flags.
func (o *RootOptions) loadConfig(flags *pflag.FlagSet) error {
	override := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	cfg, err := config.Load(func(c *config.Config) {
		override("db", &c.DBPath, o.DBPath)
		override("source-kind", &c.SourceKind, o.SourceKind)
		override("source", &c.SourceRoot, o.SourceRoot)
		override("source-dir", &c.SourceDir, o.SourceDir)
		override("git-ref", &c.GitRef, o.GitRef)
		override("prefix", &c.IDPrefix, o.Prefix)
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	o.Config = cfg
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
