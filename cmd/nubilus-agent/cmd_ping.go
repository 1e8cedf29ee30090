package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
)

// errConnectionCheck is returned after the failure has been reported to the
// user, so main only needs a non-zero exit.
var errConnectionCheck = errors.New("connection check failed")

func newTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check connectivity and the API key by sending a heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing connection to %s...\n", cfg.Server.APIURL)

			client := ingest.NewClient(cfg.Server.APIURL, cfg.Server.APIKey,
				ingest.WithLogger(zap.NewNop()),
			)
			err = client.Heartbeat(cmd.Context())
			switch {
			case err == nil:
				fmt.Fprintln(out, "Connection successful")
				fmt.Fprintln(out, "API key is valid")
				return nil
			case errors.Is(err, ingest.ErrNotRegistered):
				fmt.Fprintln(out, "Connection works, but server not yet registered")
				fmt.Fprintln(out, "Start the agent to register it")
				return nil
			case errors.Is(err, ingest.ErrUnauthorized):
				fmt.Fprintln(out, "Authentication failed - check your API key")
			default:
				fmt.Fprintf(out, "Connection failed: %v\n", err)
			}
			return errConnectionCheck
		},
	}
}
