package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/cache-janitor/internal/capacity"
)

func newProbeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report disk usage for each configured cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runProbe(cmd, opts)
		},
	}
}

func runProbe(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, closer, err := setup(cmd, opts, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	probe, err := newProbe(cfg.CapacityProbe)
	if err != nil {
		return newExitError(1, err)
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var failures []error
	for _, root := range cfg.RootDirectories {
		used, err := probe.UsedPercent(ctx, root)
		if err != nil {
			logFailure(errOut, "PROBE FAILED", fmt.Errorf("%s: %w", root, err))
			failures = append(failures, err)
			continue
		}

		detail := fmt.Sprintf("%s: %d%% used, free-space threshold %d%%", root, used, cfg.FreeSpaceThresholdPercent)
		if capacity.Exceeds(used, cfg.FreeSpaceThresholdPercent) {
			logWarning(out, detail+" (deep clean would run)")
			continue
		}
		logOK(out, "OK", detail)
	}

	if len(failures) > 0 {
		return newExitError(1, errors.Join(failures...))
	}
	return nil
}
