package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/overcast-dev/overnight/internal/project"
	"github.com/spf13/cobra"
)

func newInitCommand(console *log.Logger) *cobra.Command {
	var projectDir string
	var specSource string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Prepare a project's metadata directory and install its specification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(specSource) == "" {
				return fmt.Errorf("%w: --spec is required", errInvalidConfig)
			}
			resolved, err := filepath.Abs(projectDir)
			if err != nil {
				return fmt.Errorf("resolve project directory: %w", err)
			}

			if err := project.InstallSpec(resolved, specSource); err != nil {
				return err
			}
			console.Info("specification installed", "project", resolved, "spec", project.SpecPath(resolved))
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", project.MetadataDir(resolved))
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory to initialize")
	cmd.Flags().StringVarP(&specSource, "spec", "s", "", "specification file to install")

	return cmd
}
