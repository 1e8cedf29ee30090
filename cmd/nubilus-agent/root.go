package main

import (
	"github.com/spf13/cobra"

	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/version"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "nubilus-agent",
		Short: "Nubilus server monitoring agent",
		Long: `nubilus-agent registers this host with the Nubilus backend and reports
system metrics, heartbeats and endpoint health checks on a fixed schedule.

Running without a subcommand starts the agent.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(version.Info() + "\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultPath(), "path to the configuration file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newInitCmd(),
		newConfigureCmd(opts),
		newTestCmd(opts),
		newMetricsCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
