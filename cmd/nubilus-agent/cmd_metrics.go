package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/HerbHall/nubilus-agent/internal/collector"
	"github.com/HerbHall/nubilus-agent/internal/logging"
	"github.com/HerbHall/nubilus-agent/pkg/models"
)

func newMetricsCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Collect one metrics snapshot and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zap.NewNop()
			if opts.verbose {
				logger = logging.Bootstrap(true)
			}
			snapshot, err := collector.NewCollector(logger).Collect(cmd.Context())
			if err != nil {
				return fmt.Errorf("collect metrics: %w", err)
			}
			return printSnapshot(cmd.OutOrStdout(), snapshot, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	return cmd
}

func printSnapshot(w io.Writer, s *models.MetricsSnapshot, format string) error {
	switch format {
	case "text":
		writeSnapshotText(w, s)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

func writeSnapshotText(w io.Writer, s *models.MetricsSnapshot) {
	fmt.Fprintln(w, "=== System Metrics ===")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CPU:")
	fmt.Fprintf(w, "  Usage: %.1f%%\n", s.CPUUsage)
	fmt.Fprintf(w, "  Cores: %d\n", s.CPUCount)
	if s.LoadAverage1m != nil && s.LoadAverage5m != nil && s.LoadAverage15m != nil {
		fmt.Fprintf(w, "  Load Avg: %.2f, %.2f, %.2f\n", *s.LoadAverage1m, *s.LoadAverage5m, *s.LoadAverage15m)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Memory:")
	fmt.Fprintf(w, "  Usage: %.1f%%\n", s.MemoryUsage)
	fmt.Fprintf(w, "  Total: %s\n", formatBytes(s.MemoryTotal))
	fmt.Fprintf(w, "  Used: %s\n", formatBytes(s.MemoryUsed))
	fmt.Fprintf(w, "  Available: %s\n", formatBytes(s.MemoryAvailable))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Disk:")
	fmt.Fprintf(w, "  Usage: %.1f%%\n", s.DiskUsage)
	fmt.Fprintf(w, "  Total: %s\n", formatBytes(s.DiskTotal))
	fmt.Fprintf(w, "  Used: %s\n", formatBytes(s.DiskUsed))
	fmt.Fprintf(w, "  Read: %s\n", formatBytes(s.DiskReadBytes))
	fmt.Fprintf(w, "  Written: %s\n", formatBytes(s.DiskWriteBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Network:")
	fmt.Fprintf(w, "  In: %s\n", formatBytes(s.NetworkIn))
	fmt.Fprintf(w, "  Out: %s\n", formatBytes(s.NetworkOut))
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
