package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/scheduler"
	"github.com/roach88/docsync/internal/source"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/telemetry"
)

// app is the wired process shared by the commands: one store, one corpus,
// one coordinator behind one scheduler.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *store.Store
	coordinator *engine.Coordinator
	scheduler   *scheduler.Scheduler

	closers []func() error
}

// openStore opens only the database, for read-only commands.
func openStore(cmd *cobra.Command, opts *RootOptions) (*store.Store, *slog.Logger, func() error, error) {
	logger, closeLog := telemetry.NewLogger(cmd.ErrOrStderr(), telemetry.LogOptions{
		Verbose:   opts.Verbose,
		File:      opts.Config.LogFile,
		MaxSizeMB: opts.Config.LogMaxSizeMB,
	})

	logger.Debug("opening database", "path", opts.Config.DBPath)
	st, err := store.Open(opts.Config.DBPath)
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeFn := func() error {
		return errors.Join(st.Close(), closeLog())
	}
	return st, logger, closeFn, nil
}

// newApp wires store, repository, fetcher, coordinator and scheduler from
// the loaded configuration.
func newApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg := opts.Config
	st, logger, closeFn, err := openStore(cmd, opts)
	if err != nil {
		return nil, err
	}

	// Tracing is set up before the coordinator takes its tracer so one-shot
	// commands export cycle spans as well as serve.
	shutdownTracing, err := telemetry.Setup(cmd.Context(), telemetry.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		_ = closeFn()
		return nil, WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	flushTracing := func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
		defer cancel()
		return shutdownTracing(ctx)
	}

	repo := newRepository(cfg)
	fetcher := source.NewFetcher(repo, source.Options{
		Concurrency: cfg.FetchConcurrency,
		Rate:        cfg.FetchRate,
		Logger:      logger,
	})
	coord := engine.New(st, fetcher, engine.WithLogger(logger))
	sched := scheduler.New(coord, &scheduler.Guard{}, scheduler.Config{
		Interval:     cfg.Interval,
		CycleTimeout: cfg.CycleTimeout,
		RunOnStart:   true,
		Logger:       logger,
	})

	logger.Debug("corpus configured", "kind", cfg.SourceKind, "root", cfg.SourceRoot, "prefix", cfg.IDPrefix)
	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		coordinator: coord,
		scheduler:   sched,
		closers:     []func() error{closeFn, flushTracing},
	}, nil
}

func newRepository(cfg config.Config) source.Repository {
	if cfg.SourceKind == config.SourceGit {
		return source.NewGitRepository(cfg.SourceRoot, cfg.GitRef, cfg.SourceDir, cfg.IDPrefix)
	}
	return source.NewDirRepository(cfg.SourceRoot, cfg.IDPrefix)
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
