package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/cache-janitor/internal/capacity"
	"github.com/bit2swaz/cache-janitor/internal/config"
	"github.com/bit2swaz/cache-janitor/internal/logging"
	"github.com/bit2swaz/cache-janitor/internal/metrics"
	"github.com/bit2swaz/cache-janitor/internal/pool"
	"github.com/bit2swaz/cache-janitor/internal/reclaim"
	"github.com/bit2swaz/cache-janitor/internal/scheduler"
)

// newProbe is swapped out by tests that must not shell out to df.
var newProbe = capacity.New

func newRunCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean the configured cache directories every SLEEP_TIME until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runDaemon(cmd, opts)
		},
	}
	return cmd
}

func runDaemon(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, closer, err := setup(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	probe, err := newProbe(cfg.CapacityProbe)
	if err != nil {
		return newExitError(1, err)
	}

	rec := metrics.New()
	checker := capacity.NewChecker(probe, cfg.FreeSpaceThresholdPercent, logger, rec)

	// One dedicated worker per root for the normal pass, doubled for deep
	// cleans dispatched in the same iteration.
	roots := len(cfg.RootDirectories)
	workers := pool.New(roots, 2*roots, logger)

	sched := scheduler.New(cfg, reclaim.New(logger), checker, workers, logger,
		scheduler.WithMetrics(rec, cfg.MetricsTextfile))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("janitor started", "roots", roots, "workers", roots, "max_workers", 2*roots)
	runErr := sched.Run(ctx)

	logger.Info("waiting for in-flight reclaim passes")
	workers.Shutdown()

	if runErr != nil {
		logger.Error("janitor stopped", "error", runErr)
		return newExitError(1, runErr)
	}
	logger.Info("janitor stopped")
	return nil
}

// setup loads configuration and builds the logger shared by every command.
// Configuration errors come back as exit code 1.
func setup(cmd *cobra.Command, opts *rootOptions, overrides map[string]any) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.LoadFromEnv(opts.configFile, overrides)
	if err != nil {
		return nil, nil, nil, newExitError(1, fmt.Errorf("load config: %w", err))
	}

	logger, closer, err := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, newExitError(1, fmt.Errorf("set up logging: %w", err))
	}

	logger.Info("configuration loaded", "config", cfg)
	return cfg, logger, closer, nil
}
