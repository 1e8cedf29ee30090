package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/state"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configuration summary and recorded registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:     %s\n", opts.configPath)
			fmt.Fprintf(out, "API URL:    %s\n", cfg.Server.APIURL)
			fmt.Fprintf(out, "Agent name: %s\n", cfg.Agent.Name)
			fmt.Fprintf(out, "Intervals:  metrics %s, heartbeat %s\n", cfg.MetricsInterval(), cfg.HeartbeatInterval())
			if cfg.HealthChecksEnabled() {
				fmt.Fprintf(out, "Health:     %d endpoint(s) every %s\n", len(cfg.Features.Endpoints), cfg.HealthCheckInterval())
			}

			if cfg.State.Path == "" {
				fmt.Fprintln(out, "State:      disabled")
				return nil
			}
			store, err := state.Open(cmd.Context(), cfg.State.Path)
			if err != nil {
				return fmt.Errorf("open state: %w", err)
			}
			defer store.Close()

			last, err := store.LastRegistration(cmd.Context())
			if errors.Is(err, state.ErrNoRegistration) {
				fmt.Fprintln(out, "Registered: never")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read registration: %w", err)
			}
			fmt.Fprintf(out, "Registered: %s as %s (%s)\n",
				humanize.Time(last.RegisteredAt), last.ServerID, last.RegisteredAt.Format(time.RFC3339))

			if history < 2 {
				return nil
			}
			regs, err := store.Registrations(cmd.Context(), history)
			if err != nil {
				return fmt.Errorf("read registrations: %w", err)
			}
			if len(regs) > 1 {
				fmt.Fprintln(out, "History:")
				for _, r := range regs[1:] {
					fmt.Fprintf(out, "  %s  %s  %s  agent %s\n",
						r.RegisteredAt.Format(time.RFC3339), r.ServerID, r.APIURL, r.AgentVersion)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&history, "history", 5, "number of registrations to list")
	return cmd
}
