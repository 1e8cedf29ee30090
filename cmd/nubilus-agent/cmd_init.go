package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HerbHall/nubilus-agent/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", output, err)
				}
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create directory %s: %w", dir, err)
				}
			}
			tmpl := config.Template(config.DefaultAPIURLFromEnv())
			if err := os.WriteFile(output, []byte(tmpl), 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration template written to %s\n", output)
			fmt.Fprintln(out, "Edit the file to set your API key and agent name, then copy it to", config.DefaultPath())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "agent.toml", "where to write the template")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
