package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/docsync/internal/api"
	"github.com/roach88/docsync/internal/notify"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Interval time.Duration
	Watch    bool

	// Ready, if set, receives the bound HTTP address once the listener is
	// up. Used by tests.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled cycles and the HTTP trigger API",
		Long: `Run reconciliation cycles on a fixed cadence, serve the HTTP trigger and
query API, and log every committed changelog entry. With --watch, changes
to a directory corpus trigger a cycle after a short debounce.

Example:
  docsync serve --source ./rfd --db ./docsync.db --addr :8080 --interval 15m
  docsync serve --watch --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (default $DOCSYNC_HTTP_ADDR or :8080)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between scheduled cycles (default $DOCSYNC_INTERVAL or 1h)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "trigger cycles on filesystem changes (dir sources only)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		opts.Config.HTTPAddr = opts.Addr
	}
	if flags.Changed("interval") {
		opts.Config.Interval = opts.Interval
	}
	if flags.Changed("watch") {
		opts.Config.Watch = opts.Watch
	}
	if err := opts.Config.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	cfg := opts.Config

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	dispatcher := notify.NewDispatcher(a.store, notify.LogNotifier{Logger: logger}, notify.Options{
		SkipMetadata: cfg.NotifySkipMetadata,
		Logger:       logger,
	})
	// Deliver anything committed while no server was running.
	if n, err := dispatcher.Dispatch(ctx); err != nil {
		logger.Error("dispatch backlog", "err", err)
	} else if n > 0 {
		logger.Info("delivered backlog", "entries", n)
	}
	a.scheduler.AfterCycle(dispatcher.AfterCycle)

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           api.NewServer(a.scheduler, a.store, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("serving", "addr", ln.Addr().String(), "interval", cfg.Interval, "watch", cfg.Watch)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if cfg.Watch {
		g.Go(func() error {
			return a.scheduler.Watch(gctx, cfg.SourceRoot, cfg.Debounce)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("stopped gracefully")
	return nil
}
