// Package supervisor runs one coding-agent process and watches its output live.
//
// The supervisor owns the one place in overnight where real concurrency is
// required: a reader goroutine streams merged stdout+stderr line by line while
// the monitor loop races each read against a rolling idle deadline. Whichever
// fires first wins; there is no polling.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/classify"
)

// Classification names how one agent session ended.
type Classification string

const (
	// ClassificationCompleted is a natural exit with code zero and no trigger line.
	ClassificationCompleted Classification = "completed"
	// ClassificationNoAssistantMessages is the assistant-silence trigger signature.
	ClassificationNoAssistantMessages Classification = "no_assistant_messages"
	// ClassificationProviderError is the provider-failure trigger signature.
	ClassificationProviderError Classification = "provider_error"
	// ClassificationIdleTimeout means the agent produced no output past the idle budget.
	ClassificationIdleTimeout Classification = "idle_timeout"
	// ClassificationSignalTerminated is a signal death with no recorded trigger.
	ClassificationSignalTerminated Classification = "signal_terminated"
	// ClassificationGeneralError is a nonzero natural exit with no recorded trigger.
	ClassificationGeneralError Classification = "general_error"
)

// Failed reports whether the classification counts against the
// consecutive-failure threshold.
func (c Classification) Failed() bool {
	return c != ClassificationCompleted
}

// Result is the typed outcome of one supervised run.
//
// ExitCode is nil when the supervisor terminated the process before it could
// exit on its own.
type Result struct {
	ExitCode       *int
	Classification Classification
}

const (
	defaultIdleTimeout = 5 * time.Minute
	defaultGracePeriod = 10 * time.Second
)

// Config bounds one supervised run.
type Config struct {
	// IdleTimeout is the rolling silence budget, measured from the last
	// output line. The hard wall-clock budget is the agent's own job.
	IdleTimeout time.Duration
	// GracePeriod is how long a terminated process gets to exit before it
	// is force-killed.
	GracePeriod time.Duration
}

// Supervisor executes agent commands one at a time. A zero-value config gets
// working defaults; instances are safe to reuse across sessions because each
// run carries its own state.
type Supervisor struct {
	idleTimeout time.Duration
	gracePeriod time.Duration
}

// New builds a supervisor, filling unset config fields with defaults.
func New(cfg Config) *Supervisor {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	return &Supervisor{idleTimeout: cfg.IdleTimeout, gracePeriod: cfg.GracePeriod}
}

// Run starts the agent command with the prompt on stdin, forwards every output
// line to sink in arrival order, and returns a Result for every run that got
// as far as spawning.
//
// Only environmental faults escalate as errors: failure to spawn the process
// or to write the transcript sink. Everything the process itself does wrong
// comes back as a classification, never as an error.
func (s *Supervisor) Run(ctx context.Context, command agent.Command, input io.Reader, sink io.Writer) (Result, error) {
	if strings.TrimSpace(command.Name) == "" {
		return Result{}, errors.New("command name is required")
	}
	if sink == nil {
		return Result{}, errors.New("output sink is required")
	}

	cmd := exec.Command(command.Name, command.Args...) // #nosec G204 -- operator-configured agent command.
	cmd.Dir = command.Dir
	cmd.Stdin = input

	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return Result{}, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = writeEnd
	cmd.Stderr = writeEnd

	if err := cmd.Start(); err != nil {
		_ = readEnd.Close()
		_ = writeEnd.Close()
		return Result{}, fmt.Errorf("spawn agent %q: %w", command.Name, err)
	}
	// The child holds its own copy of the write end; ours must close so the
	// reader sees EOF when the child exits.
	_ = writeEnd.Close()

	lines := make(chan string, 64)
	go readLines(readEnd, lines)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	trigger, sinkErr := s.monitor(ctx, cmd, lines, sink)
	exitCode, graceErr := s.awaitExit(cmd, lines, sink, waitErr)
	_ = readEnd.Close()
	// Release the reader goroutine if an orphaned grandchild still holds the
	// write end of the pipe.
	go func() {
		for range lines {
		}
	}()

	if sinkErr != nil {
		return Result{}, sinkErr
	}
	if graceErr != nil {
		return Result{}, graceErr
	}
	return resolveResult(trigger, exitCode), nil
}

// monitor races line reads against the rolling idle deadline until the stream
// closes, a trigger fires, or the context is cancelled. A non-empty returned
// classification means termination was requested.
func (s *Supervisor) monitor(ctx context.Context, cmd *exec.Cmd, lines <-chan string, sink io.Writer) (Classification, error) {
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Natural stream close: the process exited on its own.
				return "", nil
			}
			if err := writeLine(sink, line); err != nil {
				s.terminate(cmd)
				return "", err
			}
			if signal := classify.Classify(line); signal != classify.SignalNone {
				s.terminate(cmd)
				return triggerClassification(signal), nil
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)
		case <-idle.C:
			s.terminate(cmd)
			return ClassificationIdleTimeout, nil
		case <-ctx.Done():
			s.terminate(cmd)
			return "", nil
		}
	}
}

// drainTimeout bounds how long awaitExit keeps reading after the process has
// exited, in case an orphaned grandchild still holds the pipe open.
const drainTimeout = time.Second

// awaitExit drains remaining output into the sink and waits for the process
// to fully exit, force-killing it when the grace period lapses. Lines already
// produced by the process are persisted before this returns.
func (s *Supervisor) awaitExit(cmd *exec.Cmd, lines <-chan string, sink io.Writer, waitErr <-chan error) (int, error) {
	grace := time.NewTimer(s.gracePeriod)
	defer grace.Stop()

	exited := false
	exitCode := 0
	var sinkErr error
	for {
		if exited && lines == nil {
			return exitCode, sinkErr
		}
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := writeLine(sink, line); err != nil && sinkErr == nil {
				sinkErr = err
			}
		case <-grace.C:
			if exited {
				// Stream held open past process exit; stop waiting for EOF.
				return exitCode, sinkErr
			}
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		case err := <-waitErr:
			exited = true
			exitCode = exitCodeFromWait(cmd, err)
			waitErr = nil
			if !grace.Stop() {
				select {
				case <-grace.C:
				default:
				}
			}
			grace.Reset(drainTimeout)
		}
	}
}

// terminate requests a graceful stop. Best effort: a process that ignores the
// request is force-killed by awaitExit after the grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimSuffix(line, "\n")
		if line != "" || err == nil {
			lines <- line
		}
		if err != nil {
			return
		}
	}
}

func writeLine(sink io.Writer, line string) error {
	if _, err := io.WriteString(sink, line+"\n"); err != nil {
		return fmt.Errorf("write transcript line: %w", err)
	}
	return nil
}

func triggerClassification(signal classify.Signal) Classification {
	if signal == classify.SignalProviderError {
		return ClassificationProviderError
	}
	return ClassificationNoAssistantMessages
}

// resolveResult applies the classification precedence: a recorded trigger
// wins; otherwise the exit code decides.
func resolveResult(trigger Classification, exitCode int) Result {
	if trigger != "" {
		return Result{Classification: trigger}
	}
	if exitCode < 0 {
		return Result{Classification: ClassificationSignalTerminated}
	}
	code := exitCode
	if code != 0 {
		return Result{ExitCode: &code, Classification: ClassificationGeneralError}
	}
	return Result{ExitCode: &code, Classification: ClassificationCompleted}
}

func exitCodeFromWait(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
