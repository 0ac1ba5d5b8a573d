package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/config"
	"github.com/overcast-dev/overnight/internal/logging"
	"github.com/overcast-dev/overnight/internal/loop"
	"github.com/overcast-dev/overnight/internal/project"
	"github.com/overcast-dev/overnight/internal/session"
	"github.com/overcast-dev/overnight/internal/supervisor"
	"github.com/spf13/cobra"
)

type runFlags struct {
	projectDir    string
	specSource    string
	agentBinary   string
	model         string
	idleTimeout   time.Duration
	hardTimeout   time.Duration
	gracePeriod   time.Duration
	quitThreshold int
	maxIterations int
}

func newRunCommand(cfg *config.Config, console *log.Logger) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run coding-agent sessions against a project until a stop condition",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := resolveRunConfig(cmd, cfg, flags)
			if err != nil {
				return err
			}
			return runLoop(cmd, console, resolved, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.projectDir, "project", "p", ".", "project directory to work on")
	cmd.Flags().StringVarP(&flags.specSource, "spec", "s", "", "specification file installed into uninitialized projects")
	cmd.Flags().StringVar(&flags.agentBinary, "agent", "", "coding agent binary (default from config)")
	cmd.Flags().StringVar(&flags.model, "model", "", "model passed to the agent (default from config)")
	cmd.Flags().DurationVar(&flags.idleTimeout, "idle-timeout", 0, "silence budget between output lines (default from config)")
	cmd.Flags().DurationVar(&flags.hardTimeout, "hard-timeout", 0, "total wall-clock budget handed to the agent (default from config)")
	cmd.Flags().DurationVar(&flags.gracePeriod, "grace-period", 0, "time a terminated agent gets before force-kill (default from config)")
	cmd.Flags().IntVar(&flags.quitThreshold, "quit-threshold", -1, "stop after N consecutive failed sessions, 0 = never (default from config)")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", -1, "session cap for this run, 0 = unlimited (default from config)")

	return cmd
}

// resolveRunConfig overlays changed flags onto the file-derived config and
// validates the result. Validation problems map to the invalid-config exit.
func resolveRunConfig(cmd *cobra.Command, base *config.Config, flags *runFlags) (config.Config, error) {
	resolved := *base
	if cmd.Flags().Changed("agent") {
		resolved.Agent = strings.TrimSpace(flags.agentBinary)
	}
	if cmd.Flags().Changed("model") {
		resolved.Model = strings.TrimSpace(flags.model)
	}
	if cmd.Flags().Changed("idle-timeout") {
		resolved.IdleTimeout = flags.idleTimeout
	}
	if cmd.Flags().Changed("hard-timeout") {
		resolved.HardTimeout = flags.hardTimeout
	}
	if cmd.Flags().Changed("grace-period") {
		resolved.GracePeriod = flags.gracePeriod
	}
	if cmd.Flags().Changed("quit-threshold") {
		resolved.QuitThreshold = flags.quitThreshold
	}
	if cmd.Flags().Changed("max-iterations") {
		resolved.MaxIterations = flags.maxIterations
	}

	if err := resolved.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	return resolved, nil
}

func runLoop(cmd *cobra.Command, console *log.Logger, cfg config.Config, flags *runFlags) error {
	projectDir, err := filepath.Abs(flags.projectDir)
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}
	if info, statErr := os.Stat(projectDir); statErr != nil || !info.IsDir() {
		return fmt.Errorf("%w: project directory %q does not exist", errInvalidConfig, projectDir)
	}

	// Fatal preconditions, checked once before any session starts.
	binary, err := agent.ResolveBinary(cfg.Agent)
	if err != nil {
		return err
	}
	specSource := strings.TrimSpace(flags.specSource)
	probe, err := project.ProbeState(projectDir)
	if err != nil {
		return err
	}
	if !probe.Ready() {
		if specSource == "" {
			return fmt.Errorf("%w: project is not initialized and no --spec file was given", errInvalidConfig)
		}
		if _, statErr := os.Stat(specSource); statErr != nil {
			return fmt.Errorf("%w: specification file %q: %v", errInvalidConfig, specSource, statErr)
		}
	}

	runLogger, err := logging.New(cmd.Context(), logging.WithProject(projectDir))
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := runLogger.Close(); closeErr != nil {
			console.Error("failed to close run log", "error", closeErr)
		}
	}()

	runner, err := session.NewRunner(supervisor.New(supervisor.Config{
		IdleTimeout: cfg.IdleTimeout,
		GracePeriod: cfg.GracePeriod,
	}))
	if err != nil {
		return err
	}

	controller, err := loop.New(loop.Config{
		ProjectDir:    projectDir,
		SpecSource:    specSource,
		AgentBinary:   binary,
		Model:         cfg.Model,
		HardBudget:    cfg.HardTimeout,
		MaxIterations: cfg.MaxIterations,
		QuitThreshold: cfg.QuitThreshold,
	}, runner, console)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}

	runLogger.Logger.Info(
		"run starting",
		"agent", binary,
		"model", cfg.Model,
		"idle_timeout", cfg.IdleTimeout.String(),
		"hard_timeout", cfg.HardTimeout.String(),
		"max_iterations", cfg.MaxIterations,
		"quit_threshold", cfg.QuitThreshold,
	)

	summary, err := controller.Run(cmd.Context())
	runLogger.Logger.Info(
		"run finished",
		"stop_reason", string(summary.StopReason),
		"iterations", summary.Iterations,
		"consecutive_failures", summary.ConsecutiveFailures,
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(
		cmd.OutOrStdout(),
		"stopped after %d session(s): %s\n",
		summary.Iterations,
		summary.StopReason,
	)
	return nil
}
