package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/project"
	"github.com/overcast-dev/overnight/internal/prompt"
	"github.com/overcast-dev/overnight/internal/supervisor"
)

// Outcome is the immutable record of one finished session.
type Outcome struct {
	// ExitCode is the raw process exit code, nil when the supervisor
	// terminated the agent before natural exit.
	ExitCode       *int
	Classification supervisor.Classification
	StartedAt      time.Time
	EndedAt        time.Time
	// LogPath is the full transcript for this session, append-only and
	// never reused by another session.
	LogPath string
}

// Duration returns the session's elapsed wall-clock time.
func (o Outcome) Duration() time.Duration {
	return o.EndedAt.Sub(o.StartedAt)
}

// Failed reports whether the outcome counts against the failure threshold.
func (o Outcome) Failed() bool {
	return o.Classification.Failed()
}

// Request describes one session: where to run, which prompt mode, the agent
// invocation, and the controller-assigned transcript path.
type Request struct {
	ProjectDir string
	Mode       prompt.Mode
	Command    agent.Command
	LogPath    string
}

// Runner executes sessions through a process supervisor. Stateless between
// invocations; each session opens its own transcript.
type Runner struct {
	supervisor *supervisor.Supervisor
	now        func() time.Time
}

// NewRunner builds a session runner backed by the given supervisor.
func NewRunner(sup *supervisor.Supervisor) (*Runner, error) {
	if sup == nil {
		return nil, errors.New("supervisor is required")
	}
	return &Runner{supervisor: sup, now: time.Now}, nil
}

// Run resolves the prompt artifact for the requested mode, opens a fresh
// transcript, and supervises one agent invocation.
//
// The transcript is written line by line with no intermediate buffering, so
// every observed line is durable even when the agent is force-killed. A
// transcript that cannot be opened is a fatal environment error, not a
// session outcome.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if strings.TrimSpace(req.ProjectDir) == "" {
		return Outcome{}, errors.New("project directory is required")
	}
	if strings.TrimSpace(req.LogPath) == "" {
		return Outcome{}, errors.New("transcript path is required")
	}

	promptContent, err := prompt.Build(req.Mode, prompt.Context{
		MetadataDir:     project.MetadataDirName,
		SpecFileName:    project.SpecFileName,
		FeatureListName: project.FeatureListFileName,
	})
	if err != nil {
		return Outcome{}, err
	}

	// O_EXCL backs the one-file-per-session invariant: a colliding index is
	// surfaced instead of silently appending to another session's transcript.
	transcript, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_EXCL|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- controller-assigned path.
	if err != nil {
		return Outcome{}, fmt.Errorf("open transcript %q: %w", req.LogPath, err)
	}
	defer func() { _ = transcript.Close() }()

	startedAt := r.now().UTC()
	result, err := r.supervisor.Run(ctx, req.Command, strings.NewReader(promptContent), transcript)
	endedAt := r.now().UTC()
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		ExitCode:       result.ExitCode,
		Classification: result.Classification,
		StartedAt:      startedAt,
		EndedAt:        endedAt,
		LogPath:        req.LogPath,
	}, nil
}
