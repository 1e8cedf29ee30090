package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HerbHall/nubilus-agent/internal/config"
)

func newConfigureCmd(opts *globalOptions) *cobra.Command {
	var apiKey, apiURL, name string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write a configuration file from flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			cfg.Server.APIKey = apiKey
			cfg.Server.APIURL = apiURL
			cfg.Agent.Name = name
			if cfg.Agent.Name == "" {
				cfg.Agent.Name = defaultAgentName()
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, opts.configPath); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration saved to %s\n", opts.configPath)
			fmt.Fprintf(out, "  API URL: %s\n", cfg.Server.APIURL)
			fmt.Fprintf(out, "  Agent name: %s\n", cfg.Agent.Name)
			fmt.Fprintln(out, "Run 'nubilus-agent test' to verify the connection.")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "organization API key (nub_...)")
	cmd.Flags().StringVar(&apiURL, "api-url", config.DefaultAPIURLFromEnv(), "Nubilus API base URL")
	cmd.Flags().StringVar(&name, "name", "", "agent name shown in the dashboard (default: hostname)")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

// defaultAgentName falls back to "server" when the hostname is unavailable.
func defaultAgentName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "server"
}
