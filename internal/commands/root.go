package commands

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "janitor",
		Short:         "Reclaim disk space from stale Spark shuffle and cache directories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional config file (YAML, JSON, TOML or .env); environment variables take precedence")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newReclaimCommand(opts))
	root.AddCommand(newProbeCommand(opts))
	root.AddCommand(newConfigCommand(opts))

	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}
