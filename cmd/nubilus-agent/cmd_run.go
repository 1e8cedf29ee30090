package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/nubilus-agent/internal/agent"
	"github.com/HerbHall/nubilus-agent/internal/collector"
	"github.com/HerbHall/nubilus-agent/internal/config"
	"github.com/HerbHall/nubilus-agent/internal/ingest"
	"github.com/HerbHall/nubilus-agent/internal/logging"
	"github.com/HerbHall/nubilus-agent/internal/state"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, opts)
		},
	}
}

func runAgent(cmd *cobra.Command, opts *globalOptions) error {
	boot := logging.Bootstrap(opts.verbose)
	defer func() { _ = boot.Sync() }()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		boot.Error("failed to load configuration",
			zap.String("path", opts.configPath),
			zap.Error(err),
		)
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log, opts.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	agentOpts := []agent.Option{}
	if cfg.State.Path != "" {
		store, err := state.Open(ctx, cfg.State.Path)
		if err != nil {
			logger.Warn("registration state unavailable, continuing without it",
				zap.String("path", cfg.State.Path),
				zap.Error(err),
			)
		} else {
			defer store.Close()
			agentOpts = append(agentOpts, agent.WithRecorder(store))
		}
	}

	client := ingest.NewClient(cfg.Server.APIURL, cfg.Server.APIKey,
		ingest.WithLogger(logger.Named("ingest")),
	)
	coll := collector.NewCollector(logger.Named("collector"))

	a := agent.New(cfg, client, coll, logger, agentOpts...)
	if err := a.Run(ctx); err != nil {
		logger.Error("agent exited", zap.Error(err))
		return err
	}
	return nil
}
