package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the resolved values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, _, closer, err := setup(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			out := cmd.OutOrStdout()
			logInfo(out, "configuration is valid")
			rows := [][2]string{
				{"CACHE_DIRS", strings.Join(cfg.RootDirectories, ",")},
				{"FILE_EXPIRED_TIME", cfg.NormalExpiry.String()},
				{"DEEP_CLEAN_FILE_EXPIRED_TIME", cfg.DeepExpiry.String()},
				{"FREE_SPACE_THRESHOLD", fmt.Sprintf("%d%%", cfg.FreeSpaceThresholdPercent)},
				{"SLEEP_TIME", cfg.PollInterval.String()},
				{"CAPACITY_PROBE", cfg.CapacityProbe},
				{"METRICS_TEXTFILE", orNone(cfg.MetricsTextfile)},
				{"LOG_FILE", orNone(cfg.Log.File)},
			}
			for _, row := range rows {
				fmt.Fprintf(out, "  %-30s %s\n", row[0], row[1])
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return subtleStyle.Sprint("(none)")
	}
	return s
}
