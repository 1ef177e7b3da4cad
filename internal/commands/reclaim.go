package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bit2swaz/cache-janitor/internal/config"
	"github.com/bit2swaz/cache-janitor/internal/reclaim"
	"github.com/bit2swaz/cache-janitor/internal/scheduler"
)

func newReclaimCommand(opts *rootOptions) *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "reclaim [dir...]",
		Short: "Run a single reclaim pass now and exit",
		Long: "Runs one reclaim pass over each directory (default: CACHE_DIRS) in the foreground.\n" +
			"With --deep the shorter DEEP_CLEAN_FILE_EXPIRED_TIME retention is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runReclaim(cmd, opts, args, deep)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "use the deep-clean retention window")
	return cmd
}

func runReclaim(cmd *cobra.Command, opts *rootOptions, dirs []string, deep bool) error {
	var overrides map[string]any
	if len(dirs) > 0 {
		overrides = map[string]any{config.KeyCacheDirs: strings.Join(dirs, ",")}
	}

	cfg, logger, closer, err := setup(cmd, opts, overrides)
	if err != nil {
		return err
	}
	defer closer.Close()

	expiry, tier := cfg.NormalExpiry, scheduler.TierNormal
	if deep {
		expiry, tier = cfg.DeepExpiry, scheduler.TierDeep
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	r := reclaim.New(logger)

	var invalid []error
	for _, root := range cfg.RootDirectories {
		if err := scheduler.ValidateRoot(root); err != nil {
			logFailure(errOut, "SKIPPED", err)
			invalid = append(invalid, err)
			continue
		}

		start := time.Now()
		res := r.Reclaim(root, expiry)
		logOK(out, strings.ToUpper(string(tier)), fmt.Sprintf("%s: removed %d files and %d dirs, freed %s %s",
			root, res.FilesRemoved, res.DirsRemoved, humanize.IBytes(uint64(res.BytesFreed)),
			subtleStyle.Sprintf("in %s", time.Since(start).Round(time.Millisecond))))
		if res.Failures > 0 {
			logWarning(errOut, fmt.Sprintf("%s: %d deletions failed, see log for details", root, res.Failures))
		}
	}

	if len(invalid) > 0 {
		return newExitError(1, errors.Join(invalid...))
	}
	return nil
}
