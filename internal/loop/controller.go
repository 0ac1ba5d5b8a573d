package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/project"
	"github.com/overcast-dev/overnight/internal/prompt"
	"github.com/overcast-dev/overnight/internal/session"
)

// State is the controller lifecycle state.
type State string

const (
	// StateIdle means no session has been issued yet.
	StateIdle State = "idle"
	// StateRunning means the controller is issuing sessions.
	StateRunning State = "running"
	// StateStopped is terminal; the Summary names why.
	StateStopped State = "stopped"
)

// StopReason names why the controller stopped issuing sessions.
type StopReason string

const (
	// StopReasonMaxIterations means the configured iteration cap was reached.
	StopReasonMaxIterations StopReason = "max_iterations"
	// StopReasonQuitThreshold means too many consecutive sessions failed.
	StopReasonQuitThreshold StopReason = "quit_threshold"
	// StopReasonCancelled means the operator interrupted the run.
	StopReasonCancelled StopReason = "cancelled"
)

// QuitThresholdError is returned when consecutive failures reach the
// configured threshold; it maps to a distinguishable nonzero exit code.
type QuitThresholdError struct {
	Threshold           int
	ConsecutiveFailures int
}

func (e *QuitThresholdError) Error() string {
	return fmt.Sprintf(
		"stopping: %d consecutive session failures reached the quit threshold of %d",
		e.ConsecutiveFailures,
		e.Threshold,
	)
}

// SessionRunner is the single-session contract the controller drives.
type SessionRunner interface {
	Run(ctx context.Context, req session.Request) (session.Outcome, error)
}

// Config holds everything one controller run needs. Explicit by design: the
// controller carries no ambient process-wide state.
type Config struct {
	ProjectDir string
	// SpecSource is the specification file installed into the project while
	// it is still uninitialized.
	SpecSource  string
	AgentBinary string
	Model       string
	// HardBudget is handed to the agent on its command line.
	HardBudget time.Duration
	// MaxIterations caps sessions for this run; zero means unlimited.
	MaxIterations int
	// QuitThreshold stops the run after this many consecutive non-completed
	// sessions; zero means never stop on failures.
	QuitThreshold int
}

// Summary reports how a controller run ended.
type Summary struct {
	Iterations          int
	ConsecutiveFailures int
	StopReason          StopReason
}

// Controller owns the iteration state: the session ordinal and the
// consecutive-failure counter. One controller drives one project directory;
// concurrent controllers against the same project are unsupported.
type Controller struct {
	cfg    Config
	runner SessionRunner
	logger *log.Logger

	state               State
	ordinal             int
	consecutiveFailures int
}

// New validates the configuration and builds an idle controller.
func New(cfg Config, runner SessionRunner, logger *log.Logger) (*Controller, error) {
	if strings.TrimSpace(cfg.ProjectDir) == "" {
		return nil, errors.New("project directory is required")
	}
	if runner == nil {
		return nil, errors.New("session runner is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.MaxIterations < 0 {
		return nil, errors.New("max iterations must not be negative")
	}
	if cfg.QuitThreshold < 0 {
		return nil, errors.New("quit threshold must not be negative")
	}
	if cfg.HardBudget <= 0 {
		return nil, errors.New("hard budget must be positive")
	}
	return &Controller{cfg: cfg, runner: runner, logger: logger, state: StateIdle}, nil
}

// State returns the controller lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Run issues sessions until a stop condition holds or ctx is cancelled.
//
// Session failures are absorbed into the consecutive-failure counter and the
// loop continues; only environmental faults (cannot probe the project, spawn
// the agent, or write a transcript) abort the run as errors. Reaching the
// quit threshold returns both a Summary and a QuitThresholdError so the CLI
// can exit nonzero.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if c.state != StateIdle {
		return Summary{}, errors.New("controller has already run")
	}
	c.state = StateRunning

	if err := project.EnsureLayout(c.cfg.ProjectDir); err != nil {
		c.state = StateStopped
		return Summary{}, err
	}

	for {
		if ctx.Err() != nil {
			return c.stop(StopReasonCancelled), nil
		}

		outcome, err := c.runOnce(ctx)
		if err != nil {
			c.state = StateStopped
			return Summary{}, err
		}

		if outcome.Failed() {
			c.consecutiveFailures++
		} else {
			c.consecutiveFailures = 0
		}
		c.logOutcome(outcome)

		if c.cfg.QuitThreshold > 0 && c.consecutiveFailures >= c.cfg.QuitThreshold {
			summary := c.stop(StopReasonQuitThreshold)
			return summary, &QuitThresholdError{
				Threshold:           c.cfg.QuitThreshold,
				ConsecutiveFailures: c.consecutiveFailures,
			}
		}
		if c.cfg.MaxIterations > 0 && c.ordinal >= c.cfg.MaxIterations {
			return c.stop(StopReasonMaxIterations), nil
		}
	}
}

// runOnce performs one iteration: fresh probe, mode selection, transcript
// allocation, and one supervised session.
func (c *Controller) runOnce(ctx context.Context) (session.Outcome, error) {
	probe, err := project.ProbeState(c.cfg.ProjectDir)
	if err != nil {
		return session.Outcome{}, err
	}

	mode := prompt.ModeCoding
	if !probe.Ready() {
		mode = prompt.ModeInitializer
		// Idempotent: initializer sessions repeat until both markers exist,
		// and re-installing the spec is safe every time.
		if err := project.InstallSpec(c.cfg.ProjectDir, c.cfg.SpecSource); err != nil {
			return session.Outcome{}, err
		}
	}

	index, err := project.NextTranscriptIndex(c.cfg.ProjectDir)
	if err != nil {
		return session.Outcome{}, err
	}

	command, err := agent.BuildCommand(c.cfg.AgentBinary, c.cfg.Model, c.cfg.HardBudget, c.cfg.ProjectDir)
	if err != nil {
		return session.Outcome{}, err
	}

	c.ordinal++
	c.logger.Info(
		"session starting",
		"ordinal", c.ordinal,
		"mode", string(mode),
		"transcript", project.TranscriptPath(c.cfg.ProjectDir, index),
	)

	return c.runner.Run(ctx, session.Request{
		ProjectDir: c.cfg.ProjectDir,
		Mode:       mode,
		Command:    command,
		LogPath:    project.TranscriptPath(c.cfg.ProjectDir, index),
	})
}

func (c *Controller) logOutcome(outcome session.Outcome) {
	fields := []any{
		"ordinal", c.ordinal,
		"classification", string(outcome.Classification),
		"duration", outcome.Duration().Round(time.Second).String(),
		"transcript", outcome.LogPath,
	}
	if outcome.ExitCode != nil {
		fields = append(fields, "exit_code", *outcome.ExitCode)
	}
	if outcome.Failed() {
		fields = append(fields, "consecutive_failures", c.consecutiveFailures)
		c.logger.Warn("session failed", fields...)
		return
	}
	c.logger.Info("session completed", fields...)
}

func (c *Controller) stop(reason StopReason) Summary {
	c.state = StateStopped
	summary := Summary{
		Iterations:          c.ordinal,
		ConsecutiveFailures: c.consecutiveFailures,
		StopReason:          reason,
	}
	c.logger.Info(
		"controller stopped",
		"reason", string(reason),
		"iterations", summary.Iterations,
		"consecutive_failures", summary.ConsecutiveFailures,
	)
	return summary
}
