package main

import (
	"fmt"

	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/config"
	"github.com/spf13/cobra"
)

func newDoctorCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the environment can run coding-agent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agent:          %s\n", cfg.Agent)
			fmt.Fprintf(out, "model:          %s\n", cfg.Model)
			fmt.Fprintf(out, "idle timeout:   %s\n", cfg.IdleTimeout)
			fmt.Fprintf(out, "hard timeout:   %s\n", cfg.HardTimeout)
			fmt.Fprintf(out, "grace period:   %s\n", cfg.GracePeriod)
			fmt.Fprintf(out, "quit threshold: %d\n", cfg.QuitThreshold)
			fmt.Fprintf(out, "max iterations: %d\n", cfg.MaxIterations)

			binary, err := agent.ResolveBinary(cfg.Agent)
			if err != nil {
				fmt.Fprintln(out, "agent binary:   MISSING")
				return err
			}
			fmt.Fprintf(out, "agent binary:   %s (ok)\n", binary)
			return nil
		},
	}
}
